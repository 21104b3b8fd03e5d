package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xcam-worker-go/internal/config"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

func WithCamera(base zerolog.Logger, mac string) zerolog.Logger {
	return base.With().Str("camera_mac", mac).Logger()
}

func WithAction(base zerolog.Logger, actionID string) zerolog.Logger {
	return base.With().Str("action_id", actionID).Logger()
}
