package notify

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jalaljaleh/portfolio-edge/internal/fingerprint"
	"github.com/jalaljaleh/portfolio-edge/internal/metrics"
)

const (
	// TokenHeader carries the optional shared secret.
	TokenHeader = "X-NOTIFY-TOKEN"
	// DefaultTTL is how long a visitor stays suppressed after a notification.
	DefaultTTL = 24 * time.Hour
	// DefaultLookupTimeout bounds the dedup read so a slow cache degrades to a
	// miss well before the server's request timeout.
	DefaultLookupTimeout = 3 * time.Second
	// DefaultMaxBodyBytes caps the request body read for the dedup key and fingerprint.
	DefaultMaxBodyBytes = 64 << 10

	corsAllowOrigin  = "*"
	corsAllowMethods = "POST, OPTIONS, GET"
	corsAllowHeaders = "Content-Type, " + TokenHeader
	corsMaxAge       = "86400"

	reasonAlreadyNotified = "already-notified"
)

// Outcome labels reported to metrics.
const (
	OutcomeNotified         = "notified"
	OutcomeSkipped          = "skipped"
	OutcomeUnauthorized     = "unauthorized"
	OutcomeMethodNotAllowed = "method_not_allowed"
	OutcomePreflight        = "preflight"
)

// Config holds the handler's static settings.
type Config struct {
	// SharedToken, when non-empty, must match the X-NOTIFY-TOKEN header.
	// An empty token leaves the endpoint open on purpose.
	SharedToken string
	// Destination is the relay chat id. Empty is logged at send time, never returned.
	Destination string
	TTL         time.Duration
	// LookupTimeout bounds the dedup Get; a timeout counts as a miss.
	LookupTimeout time.Duration
	// MaxBodyBytes bounds the body read; larger bodies are treated as absent.
	MaxBodyBytes    int64
	TrustRemoteAddr bool
	// Topic names the visit event stream when a Publisher is configured.
	Topic string
}

// Dependencies are the collaborators the handler talks to. Cache and
// Publisher are optional.
type Dependencies struct {
	Cache      DedupCache
	Relay      Relay
	Background Background
	Publisher  Publisher
	Hasher     Hasher
	IDs        IDGenerator
	Clock      Clock
}

// Response is the JSON body of every non-preflight reply.
type Response struct {
	OK       bool   `json:"ok"`
	Notified bool   `json:"notified,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
	TTL      int    `json:"ttl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// VisitEvent is published for every notified visitor.
type VisitEvent struct {
	ID          string                  `json:"id"`
	VisitorHash string                  `json:"visitor_hash,omitempty"`
	IP          string                  `json:"ip"`
	UserAgent   string                  `json:"user_agent"`
	URL         string                  `json:"url"`
	Referer     string                  `json:"referer"`
	Language    string                  `json:"language"`
	Time        time.Time               `json:"time"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
}

// Handler serves the notify endpoint. It holds no per-visitor state; the
// DedupCache is the only shared mutable resource.
type Handler struct {
	cfg        Config
	cache      DedupCache
	relay      Relay
	background Background
	publisher  Publisher
	hasher     Hasher
	ids        IDGenerator
	clock      Clock
	logger     *zap.Logger
}

// NewHandler builds a Handler. Relay and Background are required.
func NewHandler(cfg Config, deps Dependencies, logger *zap.Logger) (*Handler, error) {
	if deps.Relay == nil {
		return nil, errors.New("notify: relay is required")
	}
	if deps.Background == nil {
		return nil, errors.New("notify: background runner is required")
	}
	if deps.Publisher != nil && deps.IDs == nil {
		return nil, errors.New("notify: id generator is required with a publisher")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Handler{
		cfg:        cfg,
		cache:      deps.Cache,
		relay:      deps.Relay,
		background: deps.Background,
		publisher:  deps.Publisher,
		hasher:     deps.Hasher,
		ids:        deps.IDs,
		clock:      deps.Clock,
		logger:     logger,
	}, nil
}

// ServeHTTP implements the notify contract: 204 preflight, 405 for other
// verbs, 401 on token mismatch, otherwise 200 notified or 200 skipped.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		writePreflight(w)
		metrics.ObserveNotify(OutcomePreflight)
		return
	case http.MethodGet, http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
		metrics.ObserveNotify(OutcomeMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, Response{Error: "unauthorized"})
		metrics.ObserveNotify(OutcomeUnauthorized)
		return
	}

	body := readBody(r, h.cfg.MaxBodyBytes)
	visit := h.inspect(r, body)
	logger := h.logger.With(zap.String("visitor_key", visit.Key))

	if h.cache != nil {
		seen, err := h.lookup(r.Context(), visit.Key)
		switch {
		case err != nil:
			metrics.ObserveCacheOp("get", "error")
			logger.Warn("dedup lookup failed; notifying anyway", zap.Error(err))
		case seen:
			metrics.ObserveCacheOp("get", "hit")
			metrics.ObserveNotify(OutcomeSkipped)
			writeJSON(w, http.StatusOK, Response{OK: true, Skipped: true, Reason: reasonAlreadyNotified})
			return
		default:
			metrics.ObserveCacheOp("get", "miss")
		}
		h.schedulePut(visit, logger)
	}

	h.scheduleRelay(BuildMessage(visit).Render(), logger)
	if h.publisher != nil {
		h.schedulePublish(visit, logger)
	}

	metrics.ObserveNotify(OutcomeNotified)
	writeJSON(w, http.StatusOK, Response{OK: true, Notified: true, TTL: int(h.cfg.TTL / time.Second)})
}

func (h *Handler) lookup(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.LookupTimeout)
	defer cancel()
	_, seen, err := h.cache.Get(ctx, key)
	return seen, err
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.cfg.SharedToken == "" {
		return true
	}
	got := r.Header.Get(TokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.SharedToken)) == 1
}

func (h *Handler) inspect(r *http.Request, body []byte) Visit {
	ip := ClientIP(r, h.cfg.TrustRemoteAddr)
	ua := r.Header.Get("User-Agent")
	return Visit{
		Key:            VisitorKey(body, ip, ua),
		Time:           h.clock.Now(),
		IP:             ip,
		URL:            requestURL(r),
		UserAgent:      ua,
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Referer:        r.Header.Get("Referer"),
		Fingerprint:    fingerprint.Parse(body),
	}
}

func (h *Handler) schedulePut(visit Visit, logger *zap.Logger) {
	value := strconv.FormatInt(visit.Time.UnixMilli(), 10)
	h.background.Go("dedup-put", func(ctx context.Context) {
		if err := h.cache.Put(ctx, visit.Key, value, h.cfg.TTL); err != nil {
			metrics.ObserveCacheOp("put", "error")
			logger.Warn("dedup write failed", zap.Error(err))
			return
		}
		metrics.ObserveCacheOp("put", "ok")
	})
}

func (h *Handler) scheduleRelay(text string, logger *zap.Logger) {
	h.background.Go("relay-send", func(ctx context.Context) {
		if err := h.relay.SendMessage(ctx, h.cfg.Destination, text); err != nil {
			metrics.ObserveRelay("error")
			logger.Error("relay send failed", zap.Error(err))
			return
		}
		metrics.ObserveRelay("ok")
		logger.Debug("visitor notification delivered")
	})
}

func (h *Handler) schedulePublish(visit Visit, logger *zap.Logger) {
	h.background.Go("visit-publish", func(ctx context.Context) {
		id, err := h.ids.NewID()
		if err != nil {
			metrics.ObservePublish("error")
			logger.Warn("visit event id failed", zap.Error(err))
			return
		}
		event := VisitEvent{
			ID:          id,
			IP:          visit.IP,
			UserAgent:   visit.UserAgent,
			URL:         visit.URL,
			Referer:     visit.Referer,
			Language:    visit.AcceptLanguage,
			Time:        visit.Time,
			Fingerprint: visit.Fingerprint,
		}
		if h.hasher != nil {
			if digest, herr := h.hasher.Hash([]byte(visit.Key)); herr == nil {
				event.VisitorHash = digest
			}
		}
		if _, err := h.publisher.Publish(ctx, h.cfg.Topic, event); err != nil {
			metrics.ObservePublish("error")
			logger.Warn("visit event publish failed", zap.Error(err))
			return
		}
		metrics.ObservePublish("ok")
	})
}

// readBody returns nil for absent, oversized or unreadable bodies.
func readBody(r *http.Request, limit int64) []byte {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil || int64(len(data)) > limit {
		return nil
	}
	return data
}

func setCORS(header http.Header) {
	header.Set("Access-Control-Allow-Origin", corsAllowOrigin)
	header.Set("Access-Control-Allow-Methods", corsAllowMethods)
	header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	header.Set("Access-Control-Max-Age", corsMaxAge)
}

func writePreflight(w http.ResponseWriter) {
	setCORS(w.Header())
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload Response) {
	setCORS(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
