package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"response-broker/internal/domain"
)

const DefaultMaxContextChars = 4000

// HistoryReader returns the exchanges stored for one channel in append order.
type HistoryReader interface {
	ReadChannel(ctx context.Context, channel string) ([]domain.ExchangeRecord, error)
}

// ContextBuilder assembles a bounded prompt from a channel's recent history.
type ContextBuilder struct {
	store    HistoryReader
	preamble string
	maxChars int
}

func NewContextBuilder(store HistoryReader, preamble string, maxChars int) (*ContextBuilder, error) {
	if store == nil {
		return nil, errors.New("usecase: history reader must not be nil")
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	return &ContextBuilder{store: store, preamble: preamble, maxChars: maxChars}, nil
}

func (b *ContextBuilder) MaxChars() int { return b.maxChars }

// BuildContext returns preamble, the newest history blocks that fit in 80% of
// the budget, and the new message. Lengths are counted in runes; an
// oversized result keeps only its last MaxChars runes.
func (b *ContextBuilder) BuildContext(ctx context.Context, channel, message string) (string, error) {
	records, err := b.store.ReadChannel(ctx, channel)
	if err != nil {
		return "", newError(ErrorStoreUnavailable, ReasonHistoryReadError, err)
	}

	var blocks []string
	size := 0
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Channel != channel {
			continue
		}
		block := "User: " + rec.Input + "\nAssistant: " + rec.Output + "\n"
		n := utf8.RuneCountInString(block)
		if (size+n)*10 > b.maxChars*8 {
			break
		}
		blocks = append(blocks, block)
		size += n
	}

	var sb strings.Builder
	sb.WriteString(b.preamble)
	sb.WriteString("\n")
	for i := len(blocks) - 1; i >= 0; i-- {
		sb.WriteString(blocks[i])
	}
	sb.WriteString("User: ")
	sb.WriteString(message)

	return keepTail(sb.String(), b.maxChars), nil
}

// keepTail returns the last max runes of s.
func keepTail(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-max:])
}
