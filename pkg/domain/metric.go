package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Missing is rendered wherever the backend omitted a value.
const Missing = "—"

type MetricScore struct {
	Name  string   `json:"name"`
	Score int      `json:"score"`
	Value *float64 `json:"value,omitempty"`
	Unit  *string  `json:"unit,omitempty"`
}

// FormatMetricValue renders a raw metric value with precision scaled to its
// magnitude: no decimals from 100 up, one from 10, two from 1, four below.
// Trailing zeros are dropped.
func FormatMetricValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	abs := math.Abs(v)
	decimals := 4
	switch {
	case abs >= 100:
		decimals = 0
	case abs >= 10:
		decimals = 1
	case abs >= 1:
		decimals = 2
	}
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

// Display renders "score" or "score • value unit".
func (m MetricScore) Display() string {
	if m.Value == nil {
		return strconv.Itoa(m.Score)
	}
	v := FormatMetricValue(*m.Value)
	if m.Unit != nil && strings.TrimSpace(*m.Unit) != "" {
		return fmt.Sprintf("%d • %s %s", m.Score, v, *m.Unit)
	}
	return fmt.Sprintf("%d • %s", m.Score, v)
}

// FormatScore renders an optional overall score.
func FormatScore(score *int) string {
	if score == nil {
		return Missing
	}
	return strconv.Itoa(*score)
}
