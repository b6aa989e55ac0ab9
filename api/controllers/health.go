package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/careforall-backend/api/responses"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type Pinger interface {
	Ping(context.Context) error
}

// ReadinessCheck names one dependency probed by /health/ready.
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CareForAll-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every configured dependency and answers 503 with the
// failing names when any of them is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CareForAll-Env", cfg.App.Env)
		failures := map[string]string{}
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := check.Pinger.Ping(ctx)
			cancel()
			if err != nil {
				failures[check.Name] = err.Error()
			}
		}
		if len(failures) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies not ready").WithDetails(failures))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready", "service": cfg.Service.Kind})
	}
}
