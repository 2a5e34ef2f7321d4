package notify

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

const (
	maxVisitorIDLen    = 256
	maxKeyUserAgentLen = 200
	unknownIP          = "unknown"
)

// VisitorKey derives the dedup key for a request. A caller-supplied id in the
// JSON body wins; otherwise the client IP and User-Agent identify the visitor.
func VisitorKey(body []byte, ip, userAgent string) string {
	if id, ok := callerID(body); ok {
		return "u:" + truncate(id, maxVisitorIDLen)
	}
	return "ip:" + ip + "|ua:" + truncate(userAgent, maxKeyUserAgentLen)
}

// callerID extracts the optional "u" field. Malformed JSON and falsy values
// (null, "", false, 0) count as absent. Other values, objects and arrays
// included, are keyed by their compact JSON text.
func callerID(body []byte) (string, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", false
	}
	var payload struct {
		U json.RawMessage `json:"u"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	raw := bytes.TrimSpace(payload.U)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	switch string(raw) {
	case "false", "0":
		return "", false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw), true
	}
	return compact.String(), true
}

// ClientIP resolves the caller address from proxy headers, falling back to
// the socket address when trustRemote is set and to "unknown" otherwise.
func ClientIP(r *http.Request, trustRemote bool) string {
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if first := strings.TrimSpace(strings.Split(v, ",")[0]); first != "" {
			return first
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if trustRemote && r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return unknownIP
}

// requestURL rebuilds the absolute URL the client used.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
