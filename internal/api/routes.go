package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)
	s.router.GET("/status", s.recordingHandler.Status)

	recording := s.router.Group("/recording")
	{
		recording.GET("/status", s.recordingHandler.Status)
		recording.POST("/start", s.recordingHandler.Start)
		recording.POST("/stop", s.recordingHandler.Stop)
	}

	s.router.GET("/cameras", s.cameraHandler.ListCameras)

	actions := s.router.Group("/actions")
	{
		actions.POST("", s.actionHandler.CreateAction)
		actions.GET("/:id", s.actionHandler.GetAction)
	}
}
