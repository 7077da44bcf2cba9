package services

import (
	"context"
	"strings"
	"testing"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

func TestCoachReply(t *testing.T) {
	coach := NewCoachService()
	ctx := context.Background()

	shin := coach.Reply(ctx, domain.ChatRequest{Message: "  My left SHIN aches after tempo runs "})
	if !strings.HasPrefix(shin.Message, "For shin discomfort") {
		t.Fatalf("unexpected shin reply %q", shin.Message)
	}
	if len(shin.Citations) != 2 || shin.Citations[0].Title != "Mock KB: Tibialis Raises" {
		t.Fatalf("citations = %+v", shin.Citations)
	}

	other := coach.Reply(ctx, domain.ChatRequest{Message: "knee"})
	if !strings.HasPrefix(other.Message, "Tell me where it hurts") {
		t.Fatalf("unexpected default reply %q", other.Message)
	}
	if other.Citations == nil || len(other.Citations) != 0 {
		t.Fatalf("default reply must carry an empty citation list, got %#v", other.Citations)
	}
}
