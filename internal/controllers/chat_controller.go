package controllers

import (
	"net/http"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/internal/services"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"

	"github.com/gin-gonic/gin"
)

type chatController struct{ svc services.CoachService }

func NewChatController(s services.CoachService) *chatController {
	return &chatController{svc: s}
}

func (h *chatController) Handle(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if jobID, ok := req.RunContext["job_id"].(string); ok {
		c.Set("job_id", jobID)
	}
	c.JSON(http.StatusOK, h.svc.Reply(c.Request.Context(), req))
}
