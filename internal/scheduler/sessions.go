package scheduler

import (
	"sync"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/index"
)

// Sessions counts connected interactive clients (an attached terminal UI,
// an MCP session). Indexing runs in interactive mode while the count is
// above zero.
type Sessions struct {
	mu    sync.Mutex
	count int
}

// NewSessions creates an empty session counter.
func NewSessions() *Sessions {
	return &Sessions{}
}

// Connect registers one interactive session.
func (s *Sessions) Connect() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

// Disconnect unregisters one interactive session. It never goes below zero.
func (s *Sessions) Disconnect() {
	s.mu.Lock()
	if s.count > 0 {
		s.count--
	}
	s.mu.Unlock()
}

// Hold connects a session and returns a function that disconnects it.
// Calling the returned function more than once has no further effect.
func (s *Sessions) Hold() (release func()) {
	s.Connect()
	var once sync.Once
	return func() { once.Do(s.Disconnect) }
}

// Count returns the number of connected sessions.
func (s *Sessions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Interactive reports whether any session is connected.
func (s *Sessions) Interactive() bool {
	return s.Count() > 0
}

// Pacing sizes indexing batches by the current mode.
type Pacing struct {
	cfg      config.IndexingConfig
	sessions *Sessions
}

var _ index.Planner = (*Pacing)(nil)

// NewPacing creates a planner over cfg that switches on sessions.
func NewPacing(cfg config.IndexingConfig, sessions *Sessions) *Pacing {
	return &Pacing{cfg: cfg, sessions: sessions}
}

// Plan returns the batch plan for pass in the current mode.
func (p *Pacing) Plan(pass index.Pass) index.BatchPlan {
	interactive := p.sessions.Interactive()
	switch {
	case pass == index.PassContent && interactive:
		return index.BatchPlan{Size: p.cfg.ContentInteractiveBatchSize, Pause: p.cfg.ContentInteractivePause}
	case pass == index.PassContent:
		return index.BatchPlan{Size: p.cfg.ContentIdleBatchSize, Pause: p.cfg.ContentIdlePause}
	case interactive:
		return index.BatchPlan{Size: p.cfg.InteractiveBatchSize, Pause: p.cfg.InteractivePause}
	default:
		return index.BatchPlan{Size: p.cfg.IdleBatchSize, Pause: p.cfg.IdlePause}
	}
}
