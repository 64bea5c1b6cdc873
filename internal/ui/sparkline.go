package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the most recent samples of a rate and renders them as
// block characters scaled to the window maximum.
type Sparkline struct {
	samples []float64
	size    int
}

// NewSparkline creates a sparkline holding up to size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{size: size}
}

// Add appends a sample, dropping the oldest when full.
func (s *Sparkline) Add(v float64) {
	if v < 0 {
		v = 0
	}
	s.samples = append(s.samples, v)
	if len(s.samples) > s.size {
		s.samples = s.samples[len(s.samples)-s.size:]
	}
}

// Len returns the number of samples held.
func (s *Sparkline) Len() int {
	return len(s.samples)
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	s.samples = s.samples[:0]
}

// Render returns the newest width samples, left-padded with spaces.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = s.size
	}
	window := s.samples
	if len(window) > width {
		window = window[len(window)-width:]
	}

	maxV := 0.0
	for _, v := range window {
		maxV = max(maxV, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(window)))
	top := len(SparklineChars) - 1
	for _, v := range window {
		idx := 0
		if maxV > 0 {
			idx = min(int(v/maxV*float64(top)), top)
		}
		sb.WriteRune(SparklineChars[idx])
	}
	return sb.String()
}
