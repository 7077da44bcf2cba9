package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/pkg/analysis"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

// renderResult prints the score card for one snapshot.
func renderResult(w io.Writer, u *ui, res *domain.ScoreResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", u.title("Analysis"), u.dim(res.JobID))
	fmt.Fprintf(w, "  %-16s %s\n", "Status", statusLabel(u, res.Status))
	fmt.Fprintf(w, "  %-16s %s\n", "Overall score", domain.FormatScore(res.OverallScore))

	if msg := res.ErrorMessage(); msg != "" {
		fmt.Fprintf(w, "  %-16s %s\n", "Error", u.err(msg))
	}
	if res.OverlayPath != nil && strings.TrimSpace(*res.OverlayPath) != "" {
		fmt.Fprintf(w, "  %-16s %s\n", "Overlay", *res.OverlayPath)
	}

	if len(res.Metrics) > 0 {
		fmt.Fprintln(w, u.title("Metrics"))
		for _, m := range res.Metrics {
			fmt.Fprintf(w, "  %-16s %s\n", emptyOr(m.Name, domain.Missing), m.Display())
		}
	}
	if len(res.Tips) > 0 {
		fmt.Fprintln(w, u.title("Tips"))
		for _, tip := range res.Tips {
			fmt.Fprintf(w, "  - %s\n", tip)
		}
	}
}

func statusLabel(u *ui, s domain.JobStatus) string {
	switch s {
	case domain.StatusDone:
		return u.ok(string(s))
	case domain.StatusError:
		return u.err(string(s))
	case "":
		return domain.Missing
	default:
		return u.info(string(s))
	}
}

// pollDescription is the progress bar caption while a job is polled.
func pollDescription(s analysis.State) string {
	status := domain.Missing
	if s.Result != nil && s.Result.Status != "" {
		status = string(s.Result.Status)
	}
	return fmt.Sprintf("Polling %s (%s)", shortID(s.JobID), status)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderMessage(w io.Writer, u *ui, m domain.ChatMessage) {
	switch m.Role {
	case domain.RoleUser:
		fmt.Fprintf(w, "%s %s\n", u.info("You ›"), m.Text)
	default:
		fmt.Fprintf(w, "%s %s\n", u.title("Coach ›"), m.Text)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
