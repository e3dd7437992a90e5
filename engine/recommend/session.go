package recommend

import (
	"context"
	"log/slog"
	"sync"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
)

// Session holds the selection state of one terminal or screen. Only the
// latest Select may publish a result: earlier in-flight calls are cancelled
// and their completions are discarded.
type Session struct {
	rec     Recommender
	metrics *metrics.Fitment
	logger  *slog.Logger

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	current *Result
}

// NewSession creates a Session over rec.
func NewSession(rec Recommender, m *metrics.Fitment, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewFitment(nil)
	}
	return &Session{rec: rec, metrics: m, logger: logger}
}

// Select resolves sel and makes the result current. It returns
// domain.ErrSuperseded when a later Select started before this one finished.
func (s *Session) Select(ctx context.Context, sel domain.Selector, f Filters) (Result, error) {
	ctx, seq, cancel := s.begin(ctx)
	defer cancel()
	res, err := s.rec.Recommend(ctx, sel, f)
	return s.finish(seq, sel, res, err)
}

// begin claims the next sequence number and cancels the selection in
// flight. Callers that resolve asynchronously must call it in arrival order.
func (s *Session) begin(ctx context.Context) (context.Context, uint64, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	return ctx, s.seq, cancel
}

// finish accepts the outcome of selection seq unless a later one began.
func (s *Session) finish(seq uint64, sel domain.Selector, res Result, err error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		s.metrics.Superseded.Inc()
		s.logger.Debug("recommend: discarded stale result", "selector", sel.String(), "seq", seq, "latest", s.seq)
		return Result{}, domain.ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return Result{}, err
	}
	s.current = &res
	return res, nil
}

// Current returns the last accepted result.
func (s *Session) Current() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Result{}, false
	}
	return *s.current, true
}

// Seq returns the sequence number of the latest Select.
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close cancels any in-flight selection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
