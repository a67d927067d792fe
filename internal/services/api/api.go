// Package api provides the HTTP surface of the bridge
package api

import (
	"strings"
	"time"

	"github.com/AKSizov/bluebubbles-server/internal/platform/config"
	phttp "github.com/AKSizov/bluebubbles-server/internal/platform/net/http"
	"github.com/AKSizov/bluebubbles-server/internal/platform/net/middleware"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"
	apihttp "github.com/AKSizov/bluebubbles-server/internal/services/api/http"
	decodedom "github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
	msgdom "github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
)

// Options are the API options
type Options struct {
	Config    config.Conf
	Metrics   *telemetry.Metrics
	Reader    msgdom.ReaderPort
	Submitter decodedom.SubmitterPort
	Events    msgdom.SubscriberPort
	StartedAt time.Time
}

// Mount mounts the versioned API and the metrics endpoint on the router
func Mount(r phttp.Router, opt Options) {
	cfg := opt.Config.Prefix("API_")

	deps := apihttp.Deps{
		ServiceName:   "bluebubbles-server",
		StartedAt:     opt.StartedAt,
		Reader:        opt.Reader,
		Submitter:     opt.Submitter,
		Events:        opt.Events,
		DecodeTimeout: cfg.MayDuration("DECODE_TIMEOUT", 45*time.Second),
		ListLimit:     cfg.MayInt("LIST_LIMIT", 100),
	}

	r.Route("/api/v1", func(api phttp.Router) {
		api.Use(middleware.RequestID())
		api.Use(middleware.RealIP())
		api.Use(middleware.CORS(middleware.CORSOptions{
			AllowedOrigins: strings.Split(cfg.MayString("CORS_ORIGINS", "*"), ","),
		}))
		api.Use(middleware.AccessLog(middleware.AccessLogOptions{
			Slow: cfg.MayDuration("SLOW", 2*time.Second),
		}))
		api.Use(middleware.RecoverJSON)
		apihttp.Register(api, deps)
	})

	if opt.Metrics != nil {
		r.Handle("/metrics", opt.Metrics.Handler())
	}
}
