package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/gaitkeepr/internal/services"

	"github.com/gin-gonic/gin"
)

type getResultController struct{ svc services.JobsService }

func NewGetResultController(s services.JobsService) *getResultController {
	return &getResultController{svc: s}
}

func (h *getResultController) Handle(c *gin.Context) {
	id := c.Param("job_id")
	c.Set("job_id", id)
	res, err := h.svc.Result(c.Request.Context(), id)
	if errors.Is(err, services.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger(c).Error("result lookup failed", "jobId", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "result lookup failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}
