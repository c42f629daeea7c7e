package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	ctxutil "gestaofiscal/ms_nfe_core/internal/infrastructure/context"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/security"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxLoggedBodyBytes bounds the request body captured at debug level. Batch
// emissions can carry dozens of invoices; the log gets a preview, not the lot.
const maxLoggedBodyBytes = 8 << 10

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// RequestLogger logs one line per request with method, sanitized request
// line, status, duration and the correlation id it also plants in the
// context. At debug level the sanitized headers and a masked body preview are
// attached; emission payloads may embed certificate passwords or a token PIN,
// so the raw body never reaches the log. Levels follow the status code:
// 2xx/3xx info, 4xx warn, 5xx error.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chimw.GetReqID(r.Context())
			if requestID == "" {
				// handlers mounted without the RequestID middleware still
				// get a usable correlation id
				requestID = uuid.NewString()
			}
			ctx := ctxutil.WithCorrelationID(r.Context(), requestID)

			debug := log.Enabled(ctx, slog.LevelDebug)

			var bodyPreview []byte
			if debug && r.Body != nil {
				preview, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes))
				if err == nil {
					bodyPreview = preview
					r.Body = struct {
						io.Reader
						io.Closer
					}{io.MultiReader(bytes.NewReader(preview), r.Body), r.Body}
				}
			}

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / 1e6

			attrs := []any{
				"method", r.Method,
				"path", security.SanitizeURL(r.URL.RequestURI()),
				"remote_addr", r.RemoteAddr,
				"status", rw.statusCode,
				"duration_ms", durationMs,
				"bytes", rw.bytesWritten,
			}

			if requestID != "" {
				attrs = append(attrs, "correlation_id", requestID)
				attrs = append(attrs, "request_id", requestID)
			}

			if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
				attrs = append(attrs, "user_agent", userAgent)
			}

			if debug {
				attrs = append(attrs, "headers", security.SanitizeHeaders(r.Header))
				if body := security.SanitizeBody(bodyPreview, maxLoggedBodyBytes); body != nil {
					attrs = append(attrs, "body", body)
				}
			}

			switch {
			case rw.statusCode >= 500:
				log.Error("HTTP request", attrs...)
			case rw.statusCode >= 400:
				log.Warn("HTTP request", attrs...)
			default:
				log.Info("HTTP request", attrs...)
			}
		})
	}
}
