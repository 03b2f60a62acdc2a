package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia/idempotency"
)

// Context keys for middleware
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UploaderKey  contextKey = "uploader"
)

// RequestIDFromContext returns the id set by RequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// UploaderFromContext returns the authenticated uploader, if any
func UploaderFromContext(ctx context.Context) string {
	id, _ := ctx.Value(UploaderKey).(string)
	return id
}

// WithUploader stores the uploader identity on ctx
func WithUploader(ctx context.Context, uploader string) context.Context {
	return context.WithValue(ctx, UploaderKey, uploader)
}

// RequestID reuses the caller's X-Request-ID or generates one, and attaches
// it to the context logger.
func RequestID(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = log.WithRequestID(ctx, requestID)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logging writes one line per request with method, path, status and duration.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ctx := log.WithFields(r.Context(), map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			switch {
			case status >= http.StatusInternalServerError:
				log.Error(ctx, "http.request", nil)
			case status >= http.StatusBadRequest:
				log.Warn(ctx, "http.request")
			default:
				log.Info(ctx, "http.request")
			}
		})
	}
}

// Recoverer turns a panic into a 500 error envelope.
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error(r.Context(), "http.panic", fmt.Errorf("%v", rec))
					writeErrorBody(w, r, http.StatusInternalServerError, ErrorBody{
						Code:    CodeInternal,
						Message: "an internal server error occurred",
						Details: map[string]any{"request_id": RequestIDFromContext(r.Context())},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJWT verifies a bearer token signed by ja and records its "sub"
// claim as the uploader.
func RequireJWT(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verifier := jwtauth.Verifier(ja)
	return func(next http.Handler) http.Handler {
		withUploader := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				writeErrorBody(w, r, http.StatusUnauthorized, ErrorBody{Code: CodeUnauthorized, Message: "invalid token"})
				return
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				writeErrorBody(w, r, http.StatusUnauthorized, ErrorBody{Code: CodeUnauthorized, Message: "token has no subject"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUploader(r.Context(), sub)))
		})
		return verifier(jwtauth.Authenticator(withUploader))
	}
}

// LimitBody caps the request body. Reads past the limit fail with
// *http.MaxBytesError.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveRequestID picks the caller's request id: the request_id form field,
// then the Idempotency-Key header, then X-Request-ID.
func resolveRequestID(formID string, header http.Header) string {
	if id := strings.TrimSpace(formID); id != "" {
		return id
	}
	if id := strings.TrimSpace(header.Get("Idempotency-Key")); id != "" {
		return id
	}
	return strings.TrimSpace(header.Get("X-Request-ID"))
}

// Idempotency replays the recorded response when a request id is reused
// with an identical body, and rejects reuse with a different body. The id
// is resolved by resolveRequestID; requests without one pass straight through. Server errors are not recorded.
func Idempotency(store idempotency.Store, ttl time.Duration, log *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeBodyReadError(w, r, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash, formID := idempotency.Fingerprint(r.Header.Get("Content-Type"), body)
			id := resolveRequestID(formID, r.Header)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := log.WithField(r.Context(), "idempotency_key", id)
			scope := strings.Join([]string{UploaderFromContext(ctx), r.Method, r.URL.Path}, "|")
			key := idempotency.Key(scope, id)

			stored, err := store.Get(ctx, key)
			switch {
			case err == nil:
				record, decodeErr := idempotency.DecodeRecord(stored)
				if decodeErr != nil {
					log.Error(ctx, "decode idempotency record", decodeErr)
					break
				}
				if record.RequestHash != requestHash {
					writeErrorBody(w, r, http.StatusConflict, ErrorBody{
						Code:    CodeIdempotencyConflict,
						Message: "request id reused with a different request body",
					})
					return
				}
				log.Debug(ctx, "idempotency.replay")
				record.Replay(w)
				return
			case errors.Is(err, idempotency.ErrNotFound):
			default:
				// Uploads are content addressed, so running the request again is safe.
				log.Error(ctx, "check idempotency", err)
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status >= http.StatusInternalServerError {
				return
			}
			payload, err := idempotency.NewRecord(rec.status, rec.body.Bytes(), rec.Header().Get("Content-Type"), requestHash).Encode()
			if err != nil {
				log.Error(ctx, "encode idempotency record", err)
				return
			}
			if _, err := store.SetNX(ctx, key, payload, ttl); err != nil {
				log.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func writeBodyReadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErrorBody(w, r, http.StatusRequestEntityTooLarge, ErrorBody{
			Code:    CodePayloadTooLarge,
			Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	writeBadRequest(w, r, "could not read request body")
}
