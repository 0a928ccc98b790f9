package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/carnimore/checkout/pkg/logger"
)

const (
	filtered       = "[FILTERED]"
	maxLoggedBytes = 4 << 10
)

// sensitiveFields are matched as substrings of lower-cased field and header
// names. Card data and the gateway restrict key must never reach the logs.
var sensitiveFields = []string{
	"cardnumber",
	"card_number",
	"cvv",
	"restrictkey",
	"restrict_key",
	"authorization",
	"token",
	"secret",
	"password",
	"cookie",
}

func LoggingMiddleware(lg *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			log := logger.FromOr(r.Context(), lg)

			logRequest(log, r, reqID)

			ww := &responseWriter{
				ResponseWriter: w,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(ww, r)

			logResponse(log, r, ww, time.Since(start), reqID)
		})
	}
}

// responseWriter captures the status and body for the response log line.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBytes + 1 - rw.body.Len(); room > 0 {
		rw.body.Write(b[:min(room, len(b))])
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// logRequest reads at most maxLoggedBytes+1 of the body and stitches the
// prefix back in front of the unread remainder, so size limits applied by the
// handler still see the whole stream.
func logRequest(log *slog.Logger, r *http.Request, reqID string) {
	var prefix []byte
	if r.Body != nil && r.Body != http.NoBody {
		prefix, _ = io.ReadAll(io.LimitReader(r.Body, maxLoggedBytes+1))
		r.Body = replayBody{
			Reader: io.MultiReader(bytes.NewReader(prefix), r.Body),
			Closer: r.Body,
		}
	}

	log.Info("incoming request",
		"request_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterSensitiveHeaders(r.Header),
		"body", filterSensitiveBody(prefix),
	)
}

type replayBody struct {
	io.Reader
	io.Closer
}

func logResponse(log *slog.Logger, r *http.Request, rw *responseWriter, duration time.Duration, reqID string) {
	statusCode := rw.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	log.Log(r.Context(), level, "response",
		"request_id", reqID,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.size,
		"body", filterSensitiveBody(rw.body.Bytes()),
	)
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

func filterSensitiveHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// filterSensitiveBody masks sensitive values in JSON and in delimited
// key=value bodies. A body longer than maxLoggedBytes is a truncated prefix:
// JSON is then dropped whole since it can no longer be parsed, while delimited
// pairs are still masked one by one. Anything else is dropped when it
// mentions a sensitive name.
func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	truncated := len(body) > maxLoggedBytes
	if truncated {
		body = body[:maxLoggedBytes]
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if truncated {
			return filtered
		}
		var jsonData interface{}
		if err := json.Unmarshal(trimmed, &jsonData); err != nil {
			return filtered
		}
		out, err := json.Marshal(filterSensitiveJSON(jsonData))
		if err != nil {
			return "[ERROR - Failed to marshal filtered JSON]"
		}
		return string(out)
	}

	bodyStr := string(body)
	if strings.Contains(bodyStr, "=") {
		return filterDelimited(bodyStr)
	}
	if isSensitive(bodyStr) {
		return "[FILTERED - Contains sensitive data]"
	}
	return bodyStr
}

func filterDelimited(body string) string {
	sep := ","
	switch {
	case strings.Contains(body, ";"):
		sep = ";"
	case strings.Contains(body, "&"):
		sep = "&"
	}
	pairs := strings.Split(body, sep)
	for i, pair := range pairs {
		if key, _, ok := strings.Cut(pair, "="); ok && isSensitive(key) {
			pairs[i] = key + "=" + filtered
		}
	}
	return strings.Join(pairs, sep)
}

func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				out[key] = filtered
				continue
			}
			out[key] = filterSensitiveJSON(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = filterSensitiveJSON(item)
		}
		return out
	default:
		return v
	}
}
