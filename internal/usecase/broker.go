package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"response-broker/internal/clock"
	"response-broker/internal/domain"
	"response-broker/internal/fallback"
)

const (
	// FailureMarker prefixes every reply that is not real generated content.
	FailureMarker = "⚠️"
	FailureReply  = FailureMarker + " All providers failed."

	defaultPersistTimeout = 10 * time.Second
)

// IsFailureReply reports whether text is the broker's failure reply rather
// than generated content.
func IsFailureReply(text string) bool {
	return strings.HasPrefix(text, FailureMarker)
}

// Generator produces raw text from a prompt by walking the provider order.
type Generator interface {
	GenerateRaw(ctx context.Context, prompt string) (string, error)
}

// ConversationStore is the append-only exchange log.
type ConversationStore interface {
	HistoryReader
	ReadAll(ctx context.Context) ([]domain.ExchangeRecord, error)
	Append(ctx context.Context, rec domain.ExchangeRecord) error
}

type RespondInput struct {
	Channel string
	Message string
}

type RespondOutput struct {
	Reply string
	// Failed is set when Reply is FailureReply.
	Failed bool
	// Failure carries per-provider reasons when every provider was exhausted.
	Failure *fallback.ExhaustedError
	// Persisted is false when the exchange could not be written.
	Persisted bool
}

type Broker struct {
	builder *ContextBuilder
	gen     Generator
	store   ConversationStore
	clock   clock.Clock
	logger  *slog.Logger

	persistTimeout time.Duration
	locks          channelLocks

	tsMu   sync.Mutex
	lastTS time.Time
}

type BrokerOption func(*Broker)

func WithClock(c clock.Clock) BrokerOption {
	return func(b *Broker) {
		if c != nil {
			b.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPersistTimeout bounds the store write that follows a successful reply.
func WithPersistTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.persistTimeout = d
		}
	}
}

func NewBroker(builder *ContextBuilder, gen Generator, store ConversationStore, opts ...BrokerOption) (*Broker, error) {
	if builder == nil {
		return nil, errors.New("usecase: context builder must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	b := &Broker{
		builder:        builder,
		gen:            gen,
		store:          store,
		clock:          clock.SystemUTC{},
		logger:         slog.Default(),
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Respond builds context for the channel, generates a reply and appends the
// exchange. When no provider can answer it returns FailureReply with a nil
// error and writes nothing.
func (b *Broker) Respond(ctx context.Context, in RespondInput) (RespondOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return RespondOutput{}, newError(ErrorInvalidInput, ReasonEmptyMessage, nil)
	}
	channel := strings.TrimSpace(in.Channel)
	if channel == "" {
		return RespondOutput{}, newError(ErrorInvalidInput, ReasonEmptyChannel, nil)
	}

	prompt, err := b.builder.BuildContext(ctx, channel, message)
	if err != nil {
		return RespondOutput{}, err
	}

	reply, err := b.gen.GenerateRaw(ctx, prompt)
	if err != nil {
		return b.failure(channel, err), nil
	}

	rec := domain.ExchangeRecord{Channel: channel, Input: message, Output: reply}
	persisted := true
	if err := b.persist(ctx, rec); err != nil {
		persisted = false
		b.logger.Error("failed to persist exchange", "channel", channel, "err", err)
	}
	return RespondOutput{Reply: reply, Persisted: persisted}, nil
}

func (b *Broker) failure(channel string, err error) RespondOutput {
	out := RespondOutput{Reply: FailureReply, Failed: true}
	var exhausted *fallback.ExhaustedError
	if errors.As(err, &exhausted) {
		out.Failure = exhausted
		b.logger.Warn("all providers exhausted",
			"channel", channel,
			"kind", string(exhausted.Kind()),
			"reasons", exhausted.Reasons(),
		)
		return out
	}
	b.logger.Warn("generation failed", "channel", channel, "err", err)
	return out
}

// persist appends rec under the channel's write lock. The write outlives a
// cancelled request so a delivered reply is still recorded.
func (b *Broker) persist(ctx context.Context, rec domain.ExchangeRecord) error {
	unlock := b.locks.lock(rec.Channel)
	defer unlock()

	rec.Timestamp = b.nextTimestamp()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.persistTimeout)
	defer cancel()
	return b.store.Append(writeCtx, rec)
}

// nextTimestamp returns now in UTC, never earlier than a previously issued
// timestamp.
func (b *Broker) nextTimestamp() time.Time {
	now := b.clock.NowUTC()
	b.tsMu.Lock()
	defer b.tsMu.Unlock()
	if now.Before(b.lastTS) {
		now = b.lastTS
	}
	b.lastTS = now
	return now
}

func (b *Broker) Generator() Generator { return b.gen }

func (b *Broker) Store() ConversationStore { return b.store }

// channelLocks hands out one mutex per channel and drops it once no caller
// holds or waits on it.
type channelLocks struct {
	mu    sync.Mutex
	locks map[string]*channelLock
}

type channelLock struct {
	mu   sync.Mutex
	refs int
}

func (c *channelLocks) lock(channel string) func() {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = map[string]*channelLock{}
	}
	l, ok := c.locks[channel]
	if !ok {
		l = &channelLock{}
		c.locks[channel] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, channel)
		}
		c.mu.Unlock()
	}
}

func (c *channelLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
