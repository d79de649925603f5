// Package events provides the in-process bus for billable domain events.
// Publication happens after the enclosing database transaction commits;
// subscribers never observe un-committed state and must not mutate ledger
// state directly.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/billable/billable/logging"
)

// Topic names a domain event.
type Topic string

const (
	// TopicOrderConfirmed - an order transitioned to paid; payload *model.Order
	TopicOrderConfirmed Topic = "order_confirmed"
	// TopicTransactionCreated - a ledger transaction was written; payload *model.Transaction
	TopicTransactionCreated Topic = "transaction_created"
	// TopicQuotaConsumed - a debit was applied to a batch; payload *model.Transaction
	TopicQuotaConsumed Topic = "quota_consumed"
	// TopicTrialActivated - a trial offer was granted; payload TrialActivation
	TopicTrialActivated Topic = "trial_activated"
	// TopicReferralAttached - a referral link was first created; payload *model.Referral
	TopicReferralAttached Topic = "referral_attached"
	// TopicCustomersMerged - a source user's data moved to a target; payload Merge
	TopicCustomersMerged Topic = "customers_merged"
)

// TrialActivation is the payload for TopicTrialActivated.
type TrialActivation struct {
	UserID     uuid.UUID `json:"user_id"`
	SKU        string    `json:"sku"`
	Identities []string  `json:"identities"`
}

// Merge is the payload for TopicCustomersMerged.
type Merge struct {
	TargetUserID uuid.UUID        `json:"target_user_id"`
	SourceUserID uuid.UUID        `json:"source_user_id"`
	Moved        map[string]int64 `json:"moved"`
}

// Event is a published domain event.
type Event struct {
	Topic   Topic
	At      time.Time
	Payload interface{}
}

// Handler consumes an event. Handlers run synchronously on the publishing
// goroutine; long work should be enqueued elsewhere.
type Handler func(ctx context.Context, event Event)

// Bus is a synchronous in-process publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[Topic][]Handler{}}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// Publish delivers the payload to every subscriber of the topic. A panicking
// subscriber is logged and does not stop delivery to the rest.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload interface{}) {
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	event := Event{Topic: topic, At: time.Now(), Payload: payload}
	for _, handler := range handlers {
		b.deliver(ctx, handler, event)
	}
}

func (b *Bus) deliver(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger := logging.Logger(ctx, "events.Publish")
			logger.Error().
				Str("topic", string(event.Topic)).
				Interface("panic", r).
				Msg("event subscriber panicked")
		}
	}()
	handler(ctx, event)
}
