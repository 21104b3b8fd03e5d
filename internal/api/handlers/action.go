package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"xcam-worker-go/internal/models"
)

// ActionStore is the repository slice the action endpoints need.
type ActionStore interface {
	Create(ctx context.Context, action *models.Action) error
	GetByID(ctx context.Context, id string) (*models.Action, error)
}

type ActionHandler struct {
	actions ActionStore
}

func NewActionHandler(actions ActionStore) *ActionHandler {
	return &ActionHandler{actions: actions}
}

type CreateActionRequest struct {
	Command string               `json:"command" binding:"required"`
	Payload models.ActionPayload `json:"payload"`
}

func (h *ActionHandler) CreateAction(c *gin.Context) {
	var req CreateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Command != models.CommandCheckConfig && req.Command != models.CommandCaptureAndStitch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command: " + req.Command})
		return
	}

	additions, err := json.Marshal(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := models.ParseActionPayload(string(additions)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	action := &models.Action{
		ID:        uuid.New().String(),
		Command:   req.Command,
		Additions: string(additions),
		Status:    models.ActionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.actions.Create(c.Request.Context(), action); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, action)
}

func (h *ActionHandler) GetAction(c *gin.Context) {
	action, err := h.actions.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, action)
}
