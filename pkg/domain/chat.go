package domain

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type ChatRequest struct {
	Message    string         `json:"message" binding:"required"`
	RunContext map[string]any `json:"run_context"`
}

type Citation struct {
	Title string `json:"title"`
	Note  string `json:"note"`
}

type ChatResponse struct {
	Message   string     `json:"message"`
	Citations []Citation `json:"citations"`
}

// Text flattens a reply and its citations into a single transcript entry.
func (r ChatResponse) Text() string {
	if len(r.Citations) == 0 {
		return r.Message
	}
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString("\n\nSources:")
	for _, c := range r.Citations {
		b.WriteString("\n- ")
		b.WriteString(c.Title)
		b.WriteString(": ")
		b.WriteString(c.Note)
	}
	return b.String()
}
