package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/pkg/natsutil"
)

// DefaultSubject is the request subject a catalog responder listens on.
const DefaultSubject = "pos.catalog.query"

// Reply is the wire response to a Query.
type Reply struct {
	Products []domain.Product `json:"products"`
	Error    string           `json:"error,omitempty"`
}

// NATSSource queries a remote catalog over NATS request/reply.
type NATSSource struct {
	nc      *nats.Conn
	subject string
	name    string
}

// Compile-time interface check.
var _ Source = (*NATSSource)(nil)

// NewNATSSource creates a source that sends queries to subject.
func NewNATSSource(nc *nats.Conn, subject string) *NATSSource {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSource{nc: nc, subject: subject, name: "nats:" + subject}
}

func (s *NATSSource) Name() string { return s.name }

func (s *NATSSource) QueryByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return s.request(ctx, Query{Op: OpCategory, Category: category})
}

func (s *NATSSource) QueryBySize(ctx context.Context, category, size string) ([]domain.Product, error) {
	return s.request(ctx, Query{Op: OpSize, Category: category, Value: size})
}

func (s *NATSSource) QueryByCode(ctx context.Context, category, code string) ([]domain.Product, error) {
	return s.request(ctx, Query{Op: OpCode, Category: category, Value: code})
}

func (s *NATSSource) request(ctx context.Context, q Query) ([]domain.Product, error) {
	reply, err := natsutil.Request[Query, Reply](ctx, s.nc, s.subject, q)
	if err != nil {
		return nil, &domain.SourceError{Source: s.name, Op: q.Op, Err: err}
	}
	if reply.Error != "" {
		return nil, &domain.SourceError{Source: s.name, Op: q.Op, Err: errors.New(reply.Error)}
	}
	return tag(reply.Products, s.name), nil
}

// Responder answers catalog queries on a subject from a local source.
type Responder struct {
	src    Source
	sub    *nats.Subscription
	logger *slog.Logger
}

// Serve subscribes src to subject in a queue group so several store-side
// processes can share the load.
func Serve(nc *nats.Conn, subject string, src Source, logger *slog.Logger) (*Responder, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Responder{src: src, logger: logger}
	sub, err := natsutil.Respond(nc, subject, "catalog", r.handle)
	if err != nil {
		return nil, err
	}
	r.sub = sub
	logger.Info("catalog responder listening", "subject", subject, "source", src.Name())
	return r, nil
}

func (r *Responder) handle(ctx context.Context, q Query) Reply {
	products, err := Run(ctx, r.src, q)
	if err != nil {
		r.logger.Warn("catalog query failed", "op", q.Op, "category", q.Category, "error", err)
		return Reply{Error: err.Error()}
	}
	if products == nil {
		products = []domain.Product{}
	}
	return Reply{Products: products}
}

// Close stops answering queries.
func (r *Responder) Close() error { return r.sub.Unsubscribe() }
