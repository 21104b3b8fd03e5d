package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"xcam-worker-go/internal/models"
)

// CameraLister is the repository slice the camera endpoints need.
type CameraLister interface {
	List(ctx context.Context) ([]models.Camera, error)
}

type CameraHandler struct {
	cameras CameraLister
}

func NewCameraHandler(cameras CameraLister) *CameraHandler {
	return &CameraHandler{cameras: cameras}
}

func (h *CameraHandler) ListCameras(c *gin.Context) {
	cameras, err := h.cameras.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cameras == nil {
		cameras = []models.Camera{}
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cameras, "count": len(cameras)})
}
