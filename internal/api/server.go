package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"xcam-worker-go/internal/api/handlers"
	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/workspace"
)

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler    *handlers.HealthHandler
	recordingHandler *handlers.RecordingHandler
	cameraHandler    *handlers.CameraHandler
	actionHandler    *handlers.ActionHandler
}

func NewServer(
	cfg *config.Config,
	store *workspace.Store,
	cameras handlers.CameraLister,
	actions handlers.ActionStore,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	return &Server{
		config:           cfg,
		router:           router,
		healthHandler:    handlers.NewHealthHandler(cfg.WorkerID),
		recordingHandler: handlers.NewRecordingHandler(store),
		cameraHandler:    handlers.NewCameraHandler(cameras),
		actionHandler:    handlers.NewActionHandler(actions),
	}
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	return nil
}

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("starting worker API")
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("stopping worker API")
	return s.server.Shutdown(ctx)
}
