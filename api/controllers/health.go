package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/bistrohq/bistro-backend/api/middleware"
	"github.com/bistrohq/bistro-backend/api/responses"
	"github.com/bistrohq/bistro-backend/pkg/config"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

const (
	envHeader          = "X-Bistro-Env"
	readinessTimeout   = 2 * time.Second
	dependencyStatusOK = "ok"
)

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and answers 503 when any of them fails.
// Nil pingers are reported as skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(names))
		var failed []string
		for _, name := range names {
			dep := deps[name]
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "unavailable"
				failed = append(failed, name)
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "readiness check failed")
				}
				continue
			}
			checks[name] = dependencyStatusOK
		}

		if len(failed) > 0 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

// Ping echoes the request id so callers can correlate logs.
func Ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"status":     dependencyStatusOK,
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
	}
}
