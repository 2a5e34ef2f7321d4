package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Command is a developer shell action. The returned value is sent back as
// {"result": value}; an error becomes a 500 {"ok":false,"error":...}.
type Command func(ctx context.Context) (any, error)

func withBuiltins(extra map[string]Command) map[string]Command {
	out := map[string]Command{
		"ping": func(context.Context) (any, error) { return "pong !", nil },
	}
	for name, cmd := range extra {
		out[strings.ToLower(name)] = cmd
	}
	return out
}

// dev runs GET /dev?command=<name>&token=<token>. An unset dev token locks
// the shell entirely.
func (s *Server) dev(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.redirect(w, r)
		return
	}
	q := r.URL.Query()
	token := q.Get("token")
	if s.opts.DevToken == "" || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.DevToken)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	name := strings.ToLower(strings.TrimSpace(q.Get("command")))
	cmd, ok := s.commands[name]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown dev command")
		return
	}
	result, err := cmd(r.Context())
	if err != nil {
		s.logger.Warn("dev command failed", zap.String("command", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}
