// Package subscriber consumes change notifications from JetStream and
// keeps the viewsync read state fresh. The fulfillment engine publishes
// one event per touched collection after every committed mutation; the
// workers here record which collections need a refresh so passive views
// never poll the store.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

// ViewState tracks, per collection, when the last change was seen and how
// many records it touched. Safe for concurrent workers.
type ViewState struct {
	mu    sync.Mutex
	views map[events.Collection]ViewMark
}

// ViewMark is the refresh bookkeeping of one collection.
type ViewMark struct {
	LastChangedAt time.Time
	ChangedIDs    int
}

func NewViewState() *ViewState {
	return &ViewState{views: make(map[events.Collection]ViewMark)}
}

// Record notes that the given collection changed.
func (v *ViewState) Record(event events.CollectionChangedEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	mark := v.views[event.Collection]
	mark.LastChangedAt = event.OccurredAt
	mark.ChangedIDs += len(event.IDs)
	v.views[event.Collection] = mark
}

// Mark returns the refresh bookkeeping of one collection.
func (v *ViewState) Mark(col events.Collection) (ViewMark, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	mark, ok := v.views[col]
	return mark, ok
}

// Start initializes the JetStream consumer and runs the configured number
// of worker goroutines until the context is cancelled.
func Start(ctx context.Context, js jetstream.JetStream, subscriberCfg config.SubscriberConfig, state *ViewState, logger *slog.Logger) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: subscriberCfg.Subject,
		Durable:       subscriberCfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, subscriberCfg.Stream, cfg)
	if err != nil {
		return err
	}
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < subscriberCfg.Workers; i++ {
		g.Go(func() error {
			return runWorker(gCtx, consumer, subscriberCfg.Timeout, subscriberCfg.Interval, state, logger)
		})
	}
	return g.Wait()
}

// runWorker fetches messages from the JetStream consumer and processes them.
func runWorker(ctx context.Context, consumer jetstream.Consumer, timeout time.Duration, interval time.Duration, state *ViewState, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := consumer.Fetch(1, jetstream.FetchMaxWait(timeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				logger.Error("failed to fetch messages", "error", err)
				time.Sleep(interval)
				continue
			}
			for msg := range batch.Messages() {
				handleMessage(msg, state, logger)
			}
		}
	}
}

// ackableMsg is the slice of jetstream.Msg the handler needs.
type ackableMsg interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
}

// handleMessage processes a single change notification.
func handleMessage(msg ackableMsg, state *ViewState, logger *slog.Logger) {
	if msg == nil {
		logger.Error("received nil message")
		return
	}
	var event events.CollectionChangedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		logger.Error("failed to unmarshal message", "error", err, "subject", msg.Subject())
		if err := msg.Nak(); err != nil {
			logger.Error("failed to nack message", "error", err)
		}
		return
	}

	state.Record(event)
	logger.Info("collection changed",
		slog.String("subject", msg.Subject()),
		slog.String("collection", string(event.Collection)),
		slog.Int("ids", len(event.IDs)),
		slog.String("occurred_at", event.OccurredAt.Format(time.RFC3339)))

	if err := msg.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
}
