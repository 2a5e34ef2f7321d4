package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jalaljaleh/portfolio-edge/internal/fingerprint"
	"github.com/jalaljaleh/portfolio-edge/internal/notify"
)

type notifyOptions struct {
	endpoint  string
	token     string
	visitorID string
	userAgent string
	timeout   time.Duration
	verbose   bool
}

// newNotifyCmd creates the 'notify' subcommand, a client that posts a visit
// carrying this machine's fingerprint. Handy for smoke-testing a deployment.
func newNotifyCmd() *cobra.Command {
	opts := notifyOptions{}
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Posts a test visit to a running service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNotify(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "http://localhost:8080/notify", "notify endpoint URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "shared notify token, sent as "+notify.TokenHeader)
	cmd.Flags().StringVar(&opts.visitorID, "visitor-id", "", "stable visitor id; empty falls back to ip and user agent")
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", "portfolio-edge-cli", "User-Agent header")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "report probes that failed")
	return cmd
}

func runNotify(ctx context.Context, cmd *cobra.Command, opts notifyOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fp, errs := fingerprint.Collect(fingerprint.RuntimeProbes(opts.userAgent, opts.visitorID)...)
	if opts.verbose {
		for _, err := range errs {
			fmt.Fprintln(cmd.ErrOrStderr(), "probe skipped:", err)
		}
	}

	body, err := json.Marshal(fp.Payload())
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", opts.userAgent)
	if opts.token != "" {
		req.Header.Set(notify.TokenHeader, opts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post visit: %w", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(bytes.TrimSpace(reply)))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify endpoint returned %s", resp.Status)
	}
	return nil
}
