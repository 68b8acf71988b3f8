package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/bistrohq/bistro-backend/api/responses"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	pkgredis "github.com/bistrohq/bistro-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	maxIdempotencyKeyLen   = 255
	inFlightTTL            = 2 * time.Minute
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

type idempotencyRule struct {
	method  string
	pattern string
	ttl     time.Duration
}

// Stock movements and order closes replay for a week; everything else for a day.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, pattern: "/api/v1/tables/{tableId}/seat", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/orders/{orderId}/lines", ttl: defaultIdempotencyTTL},
	{method: http.MethodDelete, pattern: "/api/v1/order-lines/{lineId}", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/employees/{employeeId}/shifts", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/employees/{employeeId}/time-off", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/time-off/{timeOffId}/status", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/orders/{orderId}/close", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, pattern: "/api/v1/inventory/{ingredientId}/adjustments", ttl: criticalIdempotencyTTL},
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
	InFlight    bool              `json:"in_flight,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on the
// routes listed in idempotencyRules. It must run after routing (chi With) so
// the full route pattern is known. A key is reserved while the first request
// runs and released again when that request fails with a 5xx or a lost race,
// so a retry with the same key reaches the handler.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if idempotencyKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			if len(idempotencyKey) > maxIdempotencyKeyLen {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(r.Method+"|"+r.URL.Path, idempotencyKey)

			reservation, err := json.Marshal(idempotencyRecord{RequestHash: requestHash, InFlight: true})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation"))
				return
			}
			reserved, err := store.SetNX(r.Context(), key, string(reservation), inFlightTTL)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayStored(w, r, store, key, requestHash, logg)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			if retryableResponse(status, rec.body.Bytes()) {
				if delErr := store.Del(context.WithoutCancel(r.Context()), key); delErr != nil {
					logError(r.Context(), logg, "release idempotency key", delErr)
				}
				return
			}

			record := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}

			payload, marshalErr := json.Marshal(record)
			if marshalErr != nil {
				logError(r.Context(), logg, "marshal idempotency record", marshalErr)
				return
			}

			if setErr := store.Set(context.WithoutCancel(r.Context()), key, string(payload), ttl); setErr != nil {
				logError(r.Context(), logg, "persist idempotency record", setErr)
			}
		})
	}
}

func replayStored(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, requestHash string, logg *logger.Logger) {
	stored, err := store.Get(r.Context(), key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConcurrentModification, "idempotency key expired during lookup"))
		return
	}
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	record, err := decodeRecord(stored)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.InFlight {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConcurrentModification, "request with this idempotency key is still in progress"))
		return
	}
	writeStoredResponse(w, record)
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// retryableResponse reports whether the outcome must not be cached: server
// failures and lost races are retried by the caller with the same key.
func retryableResponse(status int, body []byte) bool {
	if status >= http.StatusInternalServerError {
		return true
	}
	if status != http.StatusConflict {
		return false
	}
	var payload struct {
		Error struct {
			Code pkgerrors.Code `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Error.Code == pkgerrors.CodeConcurrentModification
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.pattern == pattern {
			return rule.ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
