package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"xcam-worker-go/internal/models"
	"xcam-worker-go/internal/workspace"
)

type RecordingHandler struct {
	store *workspace.Store
}

func NewRecordingHandler(store *workspace.Store) *RecordingHandler {
	return &RecordingHandler{store: store}
}

type StartRecordingRequest struct {
	VideoName string `json:"video_name"`
}

type RecordingStatusResponse struct {
	Status       models.RunStatus `json:"status"`
	Processing   bool             `json:"processing"`
	CurrentVideo string           `json:"current_video,omitempty"`
	FreeDiskMB   int64            `json:"free_disk_mb"`
}

func (h *RecordingHandler) Status(c *gin.Context) {
	control := h.store.ReadControl()
	c.JSON(http.StatusOK, RecordingStatusResponse{
		Status:       control.Status,
		Processing:   control.Processing,
		CurrentVideo: control.CurrentVideo,
		FreeDiskMB:   h.store.FreeDiskMB(),
	})
}

func (h *RecordingHandler) Start(c *gin.Context) {
	var req StartRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	control := h.store.ReadControl()
	if control.Processing {
		c.JSON(http.StatusConflict, gin.H{"error": "a video is still processing"})
		return
	}
	if control.Status == models.RunStart {
		c.JSON(http.StatusConflict, gin.H{"error": "recording already started"})
		return
	}

	videoName := req.VideoName
	if videoName == "" {
		videoName = "timelapse_" + time.Now().Format("20060102_150405")
	}
	control.Status = models.RunStart
	control.CurrentVideo = videoName
	if err := h.store.WriteControl(control); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "start", "current_video": videoName})
}

func (h *RecordingHandler) Stop(c *gin.Context) {
	control := h.store.ReadControl()
	if control.Status == models.RunStop {
		c.JSON(http.StatusConflict, gin.H{"error": "recording already stopped"})
		return
	}

	control.Status = models.RunStop
	if err := h.store.WriteControl(control); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stop"})
}
