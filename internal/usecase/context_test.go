package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"response-broker/internal/domain"
)

type sliceReader []domain.ExchangeRecord

func (s sliceReader) ReadChannel(context.Context, string) ([]domain.ExchangeRecord, error) {
	return s, nil
}

func rec(channel, in, out string) domain.ExchangeRecord {
	return domain.ExchangeRecord{Channel: channel, Input: in, Output: out}
}

func TestNewContextBuilder(t *testing.T) {
	_, err := NewContextBuilder(nil, "p", 100)
	require.Error(t, err)

	b, err := NewContextBuilder(sliceReader{}, "p", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxContextChars, b.MaxChars())
}

func TestBuildContext_NoHistory(t *testing.T) {
	b, err := NewContextBuilder(sliceReader{}, "SYSTEM", 4000)
	require.NoError(t, err)

	got, err := b.BuildContext(context.Background(), "c1", "hello")
	require.NoError(t, err)
	require.Equal(t, "SYSTEM\nUser: hello", got)
}

func TestBuildContext_ChronologicalBlocks(t *testing.T) {
	b, err := NewContextBuilder(sliceReader{
		rec("c1", "first", "one"),
		rec("c1", "second", "two"),
	}, "SYSTEM", 4000)
	require.NoError(t, err)

	got, err := b.BuildContext(context.Background(), "c1", "third")
	require.NoError(t, err)
	require.Equal(t, "SYSTEM\nUser: first\nAssistant: one\nUser: second\nAssistant: two\nUser: third", got)
}

func TestBuildContext_ExactChannelMatch(t *testing.T) {
	b, err := NewContextBuilder(sliceReader{
		rec("c1", "mine", "yes"),
		rec("c10", "prefix", "no"),
		rec("c", "shorter", "no"),
		rec("C1", "case", "no"),
	}, "S", 4000)
	require.NoError(t, err)

	got, err := b.BuildContext(context.Background(), "c1", "q")
	require.NoError(t, err)
	require.Equal(t, "S\nUser: mine\nAssistant: yes\nUser: q", got)
}

func TestBuildContext_HistoryBudgetIsEightyPercent(t *testing.T) {
	// Each block is 21 runes; three fit in 80 and a fourth would not.
	var history sliceReader
	for _, pair := range [][2]string{{"1", "a"}, {"2", "b"}, {"3", "c"}, {"4", "d"}, {"5", "e"}} {
		history = append(history, rec("c1", pair[0], pair[1]))
	}
	require.Equal(t, 21, utf8.RuneCountInString("User: 1\nAssistant: a\n"))

	b, err := NewContextBuilder(history, "P", 100)
	require.NoError(t, err)
	got, err := b.BuildContext(context.Background(), "c1", "new")
	require.NoError(t, err)

	require.Equal(t, "P\nUser: 3\nAssistant: c\nUser: 4\nAssistant: d\nUser: 5\nAssistant: e\nUser: new", got)
}

func TestBuildContext_BlockExactlyAtBudgetIsKept(t *testing.T) {
	// 80% of 105 is 84: four 21-rune blocks fit exactly.
	var history sliceReader
	for _, in := range []string{"1", "2", "3", "4"} {
		history = append(history, rec("c1", in, "x"))
	}
	b, err := NewContextBuilder(history, "", 105)
	require.NoError(t, err)
	got, err := b.BuildContext(context.Background(), "c1", "n")
	require.NoError(t, err)
	require.Equal(t, 4, strings.Count(got, "Assistant: x"))
}

func TestBuildContext_TruncationKeepsTail(t *testing.T) {
	preamble := strings.Repeat("p", 150)
	b, err := NewContextBuilder(sliceReader{rec("c1", "old", "reply")}, preamble, 100)
	require.NoError(t, err)

	got, err := b.BuildContext(context.Background(), "c1", "hello")
	require.NoError(t, err)

	full := preamble + "\nUser: old\nAssistant: reply\nUser: hello"
	require.Len(t, got, 100)
	require.True(t, strings.HasSuffix(full, got))
	require.True(t, strings.HasSuffix(got, "User: hello"))
}

func TestBuildContext_TruncationCountsRunes(t *testing.T) {
	preamble := strings.Repeat("é", 120)
	b, err := NewContextBuilder(sliceReader{}, preamble, 50)
	require.NoError(t, err)

	got, err := b.BuildContext(context.Background(), "c1", "olá")
	require.NoError(t, err)
	require.Equal(t, 50, utf8.RuneCountInString(got))
	require.True(t, utf8.ValidString(got))
	require.True(t, strings.HasSuffix(preamble+"\nUser: olá", got))
}

type failingReader struct{ err error }

func (f failingReader) ReadChannel(context.Context, string) ([]domain.ExchangeRecord, error) {
	return nil, f.err
}

func TestBuildContext_StoreErrorIsHard(t *testing.T) {
	cause := errors.New("connection refused")
	b, err := NewContextBuilder(failingReader{err: cause}, "S", 100)
	require.NoError(t, err)

	got, err := b.BuildContext(context.Background(), "c1", "hi")
	require.Empty(t, got)
	expectError(t, err, ErrorStoreUnavailable, "history_read_error")
	require.ErrorIs(t, err, cause)
}
