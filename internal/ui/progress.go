package ui

import (
	"sync"
	"time"
)

// speedInterval is the minimum spacing between speed samples.
const speedInterval = 500 * time.Millisecond

// etaSmoothingFactor is the weight of a new ETA against the previous one.
const etaSmoothingFactor = 0.3

// SpeedStats holds documents-per-second figures.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of one tracked pass.
type ProgressStats struct {
	Done     int
	Total    int
	Progress float64
	ETA      time.Duration
	Speed    SpeedStats
}

// ProgressTracker derives speed and ETA for one pass from polled
// snapshots. A new run is detected when the pass goes from idle to
// running or its total changes. It is safe for concurrent use.
type ProgressTracker struct {
	mu  sync.Mutex
	now func() time.Time

	running   bool
	done      int
	total     int
	runStart  time.Time
	lastDone  int
	lastCalc  time.Time
	lastETA   time.Duration
	speed     SpeedStats
	samples   int
	sparkline *Sparkline
}

// NewProgressTracker creates a tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		now:       time.Now,
		sparkline: NewSparkline(60),
	}
}

// Observe records the latest state of the pass.
func (p *ProgressTracker) Observe(s PassState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if s.Running && (!p.running || s.Total != p.total) {
		p.reset(now)
	}
	p.running = s.Running
	p.done = s.Done
	p.total = s.Total
	if !s.Running {
		return
	}

	elapsed := now.Sub(p.lastCalc)
	if elapsed < speedInterval {
		return
	}
	if delta := s.Done - p.lastDone; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed.Current = speed
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, speed)
		p.sparkline.Add(speed)
	}
	p.lastDone = s.Done
	p.lastCalc = now
}

func (p *ProgressTracker) reset(now time.Time) {
	p.runStart = now
	p.lastCalc = now
	p.lastDone = 0
	p.lastETA = 0
	p.speed = SpeedStats{}
	p.samples = 0
	p.sparkline.Clear()
}

// Stats returns the current snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.done)/float64(p.total), 1)
	}
	return ProgressStats{
		Done:     p.done,
		Total:    p.total,
		Progress: progress,
		ETA:      p.calculateETA(progress),
		Speed:    p.speed,
	}
}

// RenderSparkline renders the speed history at width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}

// calculateETA must be called with the lock held.
func (p *ProgressTracker) calculateETA(progress float64) time.Duration {
	if !p.running || progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := p.now().Sub(p.runStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	smoothed := time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	p.lastETA = smoothed
	return smoothed
}
