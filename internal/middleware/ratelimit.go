package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
)

// maxPeekBytes bounds how much of a widget request body is read to find
// the workspace key.
const maxPeekBytes = 64 << 10

// RateLimit creates rate limiting middleware for authenticated routes.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			// Rate limit by tenant ID if authenticated, otherwise by IP
			tenantID := GetTenantID(r.Context())
			if tenantID != "" {
				return "tenant:" + tenantID, nil
			}
			return "ip:" + clientIP(r), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// WidgetRateLimit limits public widget traffic per workspace key and
// client IP, so one busy site cannot starve another.
func WidgetRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "widget:" + WorkspaceKey(r) + ":" + clientIP(r), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// WorkspaceKey finds the widget's workspace key in the query string or,
// for JSON requests, in the body. The body is restored for the handler.
func WorkspaceKey(r *http.Request) string {
	if key := r.URL.Query().Get("workspaceKey"); key != "" {
		return key
	}
	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), rest), rest}
	if err != nil {
		return ""
	}

	var body struct {
		WorkspaceKey string `json:"workspaceKey"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.WorkspaceKey
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"Too many requests","retry_after":60}`))
}
