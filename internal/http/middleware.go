package http

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/event-seat-inventory/internal/idempotency"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// LoggerFrom returns the request-scoped logger, or a no-op logger outside a request.
func LoggerFrom(ctx context.Context) observability.Logger {
	if l, ok := ctx.Value(loggerKey).(observability.Logger); ok {
		return l
	}
	return observability.NopLogger()
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := context.WithValue(r.Context(), loggerKey, entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			if route == "" {
				route = "unmatched"
			}
			observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status()), r.Method).Inc()
			entry.WithField("method", r.Method).
				WithField("route", route).
				WithField("status", ww.Status()).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Debug("request served")
		})
	}
}

// RateLimitMiddleware caps requests per tenant and per client IP. It must run
// after tenant resolution.
func RateLimitMiddleware(rl *rateLimit.RateLimiter, perMinute int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys := []string{"ip:" + clientIP(r)}
			if tenantID, ok := TenantFrom(r.Context()); ok {
				keys = append(keys, "tenant:"+tenantID.String())
			}
			for _, key := range keys {
				ok, err := rl.Allow(r.Context(), key, perMinute, time.Minute)
				if err != nil {
					LoggerFrom(r.Context()).Warn("rate limiter unavailable: ", err)
				}
				if !ok {
					observability.RateLimitExceeded.Inc()
					writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: "rate limit exceeded"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (idempotency.State, *idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
	Abort(ctx context.Context, key string) error
}

// IdempotencyMiddleware replays the stored response when a POST repeats an
// Idempotency-Key of the same tenant. Requests without the header pass through.
func IdempotencyMiddleware(idemp IdempotencyStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 16 || len(key) > 128 {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "invalid Idempotency-Key"})
				return
			}
			tenantID, _ := TenantFrom(r.Context())
			key = tenantID.String() + ":" + key

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes"})
					return
				}
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "unreadable body"})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := idempotency.Fingerprint(r.Method, r.URL.Path, body)

			state, stored, err := idemp.Begin(r.Context(), key)
			if err != nil {
				writeError(w, r, err)
				return
			}
			switch state {
			case idempotency.InFlight:
				writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: "a request with this Idempotency-Key is in progress"})
				return
			case idempotency.Completed:
				if stored.Fingerprint != fingerprint {
					writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "idempotency_key_reused", Message: "Idempotency-Key was used with a different request"})
					return
				}
				w.Header().Set("Content-Type", stored.ContentType)
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Result)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server errors leave the key free so the client can retry.
			if rec.status >= http.StatusInternalServerError {
				if err := idemp.Abort(r.Context(), key); err != nil {
					LoggerFrom(r.Context()).Warn("idempotency key not released: ", err)
				}
				return
			}
			err = idemp.Set(r.Context(), key, idempotency.Response{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Result:      rec.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err != nil {
				LoggerFrom(r.Context()).Warn("idempotent response not stored: ", err)
			}
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}
