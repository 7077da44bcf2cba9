package services

import (
	"context"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/internal/metrics"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

const (
	shinRoutine = "For shin discomfort, try: (1) 5–8 min easy walk/jog warm-up, " +
		"(2) calf raises 2×12, (3) tibialis raises 2×12, (4) gentle calf stretch 2×30s. " +
		"If pain is sharp or persists, consider seeing a professional."

	wherePrompt = "Tell me where it hurts (e.g., left knee, right Achilles, shin) and whether you want warm-up, stretching, or strengthening. " +
		"I can suggest a short routine (general guidance, not medical advice)."
)

// CoachService answers chat messages with canned guidance.
type CoachService interface {
	Reply(ctx context.Context, req domain.ChatRequest) domain.ChatResponse
}

type coachService struct{}

func NewCoachService() CoachService {
	return coachService{}
}

func (coachService) Reply(ctx context.Context, req domain.ChatRequest) domain.ChatResponse {
	msg := strings.ToLower(strings.TrimSpace(req.Message))

	if strings.Contains(msg, "shin") {
		metrics.ChatRequestsTotal.WithLabelValues("shin").Inc()
		return domain.ChatResponse{
			Message: shinRoutine,
			Citations: []domain.Citation{
				{Title: "Mock KB: Tibialis Raises", Note: "Targets front-of-shin strength; start light."},
				{Title: "Mock KB: Calf Raises", Note: "Helps calf/ankle capacity; slow tempo."},
			},
		}
	}

	metrics.ChatRequestsTotal.WithLabelValues("general").Inc()
	return domain.ChatResponse{Message: wherePrompt, Citations: []domain.Citation{}}
}
