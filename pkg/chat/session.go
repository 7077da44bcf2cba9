package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

const Greeting = "Tell me what hurts (e.g., left shin, right knee) and whether you want warm-up, stretching, or strengthening."

const Disclaimer = "Not medical advice: this coach provides general running exercise guidance only. " +
	"If pain is severe, sharp, worsening, or persistent, please see a qualified clinician."

// ErrEmptyReply is returned when the backend answers without a body.
var ErrEmptyReply = errors.New("chat: empty reply from backend")

type Backend interface {
	Chat(ctx context.Context, message string, runContext map[string]any) (*domain.ChatResponse, error)
}

// Session keeps a session-local transcript. It is never persisted.
type Session struct {
	backend Backend

	mu         sync.Mutex
	messages   []domain.ChatMessage
	runContext map[string]any
	lastErr    error
}

func NewSession(backend Backend) *Session {
	return &Session{
		backend:  backend,
		messages: []domain.ChatMessage{{Role: domain.RoleAssistant, Text: Greeting}},
	}
}

// SetRunContext attaches analysis context sent with every later message.
func (s *Session) SetRunContext(rc map[string]any) {
	s.mu.Lock()
	s.runContext = rc
	s.mu.Unlock()
}

// RunContextFromResult builds the run context the backend expects from an
// analysis snapshot.
func RunContextFromResult(r *domain.ScoreResult) map[string]any {
	if r == nil {
		return nil
	}
	metrics := make([]map[string]any, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		entry := map[string]any{"name": m.Name, "score": m.Score}
		if m.Value != nil {
			entry["value"] = *m.Value
		}
		if m.Unit != nil {
			entry["unit"] = *m.Unit
		}
		metrics = append(metrics, entry)
	}
	rc := map[string]any{
		"job_id":  r.JobID,
		"status":  string(r.Status),
		"metrics": metrics,
		"tips":    r.Tips,
	}
	if r.OverallScore != nil {
		rc["overall_score"] = *r.OverallScore
	}
	return rc
}

// Send appends the user's message, asks the backend, and appends the reply.
// Blank input is ignored. On failure the user message stays in the
// transcript and no reply is added.
func (s *Session) Send(ctx context.Context, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	s.mu.Lock()
	s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleUser, Text: text})
	s.lastErr = nil
	rc := s.runContext
	s.mu.Unlock()

	res, err := s.backend.Chat(ctx, text, rc)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && res == nil {
		err = ErrEmptyReply
	}
	if err != nil {
		s.lastErr = err
		return nil, err
	}
	reply := domain.ChatMessage{Role: domain.RoleAssistant, Text: res.Text()}
	s.messages = append(s.messages, reply)
	return &reply, nil
}

// Messages returns a copy of the transcript in order.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
