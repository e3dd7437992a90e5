package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
)

const (
	// UpdateSubject carries product updates pushed by the back office.
	UpdateSubject = "catalog.products.upsert"
	// DLQSubject is the dead letter queue subject for failed updates.
	DLQSubject = "catalog.products.upsert.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// ProductUpdate is one batch of changed products.
type ProductUpdate struct {
	ID       string           `json:"id,omitempty"`
	Products []domain.Product `json:"products"`
}

// Invalidator drops cached catalog answers. catalog.CachedSource implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ConsumerDeps holds what the update consumer writes to.
type ConsumerDeps struct {
	Sinks   []CatalogSink
	Caches  []Invalidator
	Metrics *metrics.Fitment
	Logger  *slog.Logger
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Update  ProductUpdate `json:"update"`
	Error   string        `json:"error"`
	Retries int           `json:"retries"`
}

// StartConsumer applies product updates from UpdateSubject to every sink.
// A failed update is re-published with a retry count and lands on DLQSubject
// after MaxRetries. Caches are invalidated after each applied update.
func StartConsumer(nc *nats.Conn, deps ConsumerDeps) (*nats.Subscription, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	im := New(WithLogger(log), WithMetrics(deps.Metrics))

	return nc.Subscribe(UpdateSubject, func(msg *nats.Msg) {
		var update ProductUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			log.Error("ingest: unmarshal update failed", "error", err)
			return
		}

		ctx := context.Background()
		valid := make([]domain.Product, 0, len(update.Products))
		for i, p := range update.Products {
			if err := domain.ValidateProduct(p); err != nil {
				im.metrics.ImportSkipped.Inc()
				log.Warn("ingest: skipping invalid product", "update", update.ID, "index", i, "error", err)
				continue
			}
			valid = append(valid, p)
		}
		if len(valid) == 0 {
			return
		}

		retries := 0
		if msg.Header != nil {
			retries, _ = strconv.Atoi(msg.Header.Get(retryHeader))
		}

		n, err := im.SaveProducts(ctx, valid, deps.Sinks...)
		if err != nil {
			retries++
			log.Error("ingest: update failed", "error", err, "update", update.ID, "retry", retries)

			if retries >= MaxRetries {
				data, _ := json.Marshal(dlqMessage{Update: update, Error: err.Error(), Retries: retries})
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(UpdateSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set(retryHeader, strconv.Itoa(retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
			return
		}

		for _, c := range deps.Caches {
			if err := c.Invalidate(ctx); err != nil {
				log.Warn("ingest: cache invalidation failed", "error", err)
			}
		}
		log.Info("ingest: update applied", "update", update.ID, "products", n)
	})
}
