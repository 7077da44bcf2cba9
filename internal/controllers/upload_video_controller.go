package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/internal/services"

	"github.com/gin-gonic/gin"
)

// multipart headers and boundaries on top of the file itself
const multipartOverhead = 1 << 20

type uploadVideoController struct {
	svc      services.JobsService
	maxBytes int64
}

func NewUploadVideoController(s services.JobsService, maxBytes int64) *uploadVideoController {
	return &uploadVideoController{svc: s, maxBytes: maxBytes}
}

func (h *uploadVideoController) Handle(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": services.ErrFileTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	resp, err := h.svc.Create(c.Request.Context(), fh.Filename, f)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrMissingFilename), errors.Is(err, services.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	default:
		logger(c).Error("upload failed", "file", fh.Filename, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.Set("job_id", resp.JobID)
	c.JSON(http.StatusOK, resp)
}
