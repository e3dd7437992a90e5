package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"golang.org/x/text/language"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
	"github.com/WessleyAI/wessley-fitment/pkg/natsutil"
)

// NATS subjects of the terminal protocol.
const (
	SubjectVehicleSelected = "pos.vehicle.selected"
	SubjectRecommendations = "pos.recommendations"
)

// VehicleSelected is published by a terminal when the salesperson picks a
// vehicle or changes a filter.
type VehicleSelected struct {
	Terminal string          `json:"terminal"`
	Selector domain.Selector `json:"selector"`
	Filters  Filters         `json:"filters"`
}

// Recommendations is the bridge's answer, sent to one terminal.
type Recommendations struct {
	Terminal string                      `json:"terminal"`
	Selector domain.Selector             `json:"selector"`
	Fitment  *domain.FitmentRecord       `json:"fitment"`
	Maestro  *domain.MaestroRecord       `json:"maestro,omitempty"`
	Products []domain.RecommendedProduct `json:"products"`
	Facets   Facets                      `json:"facets"`
	Message  string                      `json:"message,omitempty"`
}

// RecommendationsSubject is the subject a terminal listens on.
func RecommendationsSubject(terminal string) string {
	return SubjectRecommendations + "." + terminal
}

// validTerminal rejects ids that would not form a single subject token.
func validTerminal(id string) bool {
	return id != "" && !strings.ContainsAny(id, ".*> \t\r\n")
}

// Bridge answers VehicleSelected events with Recommendations. Each terminal
// gets its own Session, so a fast second selection discards the first.
type Bridge struct {
	nc      *nats.Conn
	rec     Recommender
	metrics *metrics.Fitment
	logger  *slog.Logger
	locale  language.Tag

	mu       sync.Mutex
	sessions map[string]*Session
	sub      *nats.Subscription
	wg       sync.WaitGroup
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption { return func(b *Bridge) { b.logger = l } }

// WithBridgeMetrics sets the instrument set.
func WithBridgeMetrics(m *metrics.Fitment) BridgeOption { return func(b *Bridge) { b.metrics = m } }

// WithLocale sets the collation locale for brand sorting.
func WithLocale(tag language.Tag) BridgeOption { return func(b *Bridge) { b.locale = tag } }

// NewBridge creates a Bridge. Call Start to subscribe.
func NewBridge(nc *nats.Conn, rec Recommender, opts ...BridgeOption) *Bridge {
	b := &Bridge{nc: nc, rec: rec, sessions: make(map[string]*Session), locale: language.English}
	for _, o := range opts {
		o(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.metrics == nil {
		b.metrics = metrics.NewFitment(nil)
	}
	return b
}

// Start subscribes to SubjectVehicleSelected.
func (b *Bridge) Start() error {
	sub, err := natsutil.Subscribe(b.nc, SubjectVehicleSelected, b.dispatch)
	if err != nil {
		return fmt.Errorf("recommend: subscribe %s: %w", SubjectVehicleSelected, err)
	}
	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()
	b.logger.Info("recommend: bridge listening", "subject", SubjectVehicleSelected)
	return nil
}

// dispatch claims the terminal's next sequence number in arrival order,
// then resolves on its own goroutine so a later selection on the same
// terminal can supersede one still in flight.
func (b *Bridge) dispatch(ctx context.Context, ev VehicleSelected) {
	if !validTerminal(ev.Terminal) {
		b.logger.Warn("recommend: dropping selection with invalid terminal", "terminal", ev.Terminal)
		return
	}
	sess := b.session(ev.Terminal)
	selCtx, seq, cancel := sess.begin(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		b.handle(selCtx, sess, seq, ev)
	}()
}

func (b *Bridge) handle(ctx context.Context, sess *Session, seq uint64, ev VehicleSelected) {
	ev.Filters.Locale = b.locale
	res, err := b.rec.Recommend(ctx, ev.Selector, ev.Filters)
	res, err = sess.finish(seq, ev.Selector, res, err)
	if IsSuperseded(err) {
		return
	}
	if err != nil {
		b.logger.WarnContext(ctx, "recommend: selection failed", "terminal", ev.Terminal, "selector", ev.Selector.String(), "error", err)
		return
	}
	out := Recommendations{
		Terminal: ev.Terminal,
		Selector: ev.Selector,
		Fitment:  res.Fitment,
		Maestro:  res.Maestro,
		Products: res.Products,
		Facets:   res.Facets,
		Message:  res.Message,
	}
	if err := natsutil.Publish(ctx, b.nc, RecommendationsSubject(ev.Terminal), out); err != nil {
		b.logger.ErrorContext(ctx, "recommend: publish recommendations", "terminal", ev.Terminal, "error", err)
		return
	}
	b.logger.DebugContext(ctx, "recommend: published", "terminal", ev.Terminal, "products", len(out.Products))
}

func (b *Bridge) session(terminal string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[terminal]
	if !ok {
		s = NewSession(b.rec, b.metrics, b.logger)
		b.sessions[terminal] = s
		b.metrics.Terminals.Inc()
	}
	return s
}

// Current returns the last published result for terminal.
func (b *Bridge) Current(terminal string) (Result, bool) {
	b.mu.Lock()
	s, ok := b.sessions[terminal]
	b.mu.Unlock()
	if !ok {
		return Result{}, false
	}
	return s.Current()
}

// Stop unsubscribes, cancels in-flight selections and waits for handlers.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}

	b.mu.Lock()
	for _, s := range b.sessions {
		s.Close()
	}
	b.metrics.Terminals.Set(0)
	b.mu.Unlock()
	b.wg.Wait()
	return err
}
