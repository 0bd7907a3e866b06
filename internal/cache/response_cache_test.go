package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingStore struct {
	readErr  error
	writeErr error
	data     []byte
	writes   int
}

func (s *failingStore) Read(context.Context) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.data, nil
}

func (s *failingStore) Write(_ context.Context, data []byte) error {
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.data = data
	return nil
}

func (s *failingStore) Close() error { return nil }

func exchange(i int) Exchange {
	return NewExchange(fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i), "general", "en")
}

func TestInsertEvictsOldestAndPersistsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, 5, 100, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		c.Insert(ctx, exchange(i))
	}

	// A fresh cache over the same slot sees exactly what was persisted.
	reloaded := New(store, 5, 100, nil, nil).LoadAll(ctx)
	require.Len(t, reloaded, 5)
	for i, ex := range reloaded {
		require.Equal(t, fmt.Sprintf("question %d", 6-i), ex.Utterance)
	}
	require.Equal(t, utterances(reloaded), utterances(c.Entries()))
}

func TestLoadAllNeverExceedsCapacityForAnyInsertSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for trial := 0; trial < 50; trial++ {
		capacity := 1 + rng.Intn(7)
		inserts := rng.Intn(20)
		c := New(NewMemoryStore(), capacity, 100, nil, nil)
		for i := 0; i < inserts; i++ {
			c.Insert(ctx, exchange(i))
		}

		got := c.LoadAll(ctx)
		want := inserts
		if want > capacity {
			want = capacity
		}
		require.Len(t, got, want, "capacity=%d inserts=%d", capacity, inserts)
		for i, ex := range got {
			require.Equal(t, fmt.Sprintf("question %d", inserts-1-i), ex.Utterance)
		}
	}
}

func TestLoadAllDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	cases := map[string]Store{
		"absent":     NewMemoryStore(),
		"corrupt":    &failingStore{data: []byte("{not json")},
		"wrong_type": &failingStore{data: []byte(`{"text":"x"}`)},
		"read_error": &failingStore{readErr: errors.New("disk gone")},
	}
	for name, store := range cases {
		c := New(store, 5, 100, zaptest.NewLogger(t), nil)
		got := c.LoadAll(ctx)
		require.Empty(t, got, name)
		require.NotNil(t, got, name)
		require.Zero(t, c.Len(), name)
	}
}

func TestLoadAllTruncatesOversizedSlot(t *testing.T) {
	ctx := context.Background()
	big := New(NewMemoryStore(), 8, 100, nil, nil)
	for i := 0; i < 8; i++ {
		big.Insert(ctx, exchange(i))
	}
	data, err := big.store.Read(ctx)
	require.NoError(t, err)

	store := NewMemoryStore()
	require.NoError(t, store.Write(ctx, data))
	small := New(store, 3, 100, nil, nil)
	got := small.LoadAll(ctx)
	require.Len(t, got, 3)
	require.Equal(t, "question 7", got[0].Utterance)

	small.Insert(ctx, exchange(99))
	require.Equal(t, []string{"question 99", "question 7", "question 6"}, utterances(small.Entries()))
}

func TestInsertPersistFailureIsNotFatal(t *testing.T) {
	store := &failingStore{writeErr: errors.New("read-only filesystem")}
	c := New(store, 5, 100, zaptest.NewLogger(t), nil)

	c.Insert(context.Background(), exchange(1))
	require.Equal(t, 1, store.writes)
	require.Equal(t, 1, c.Len())
}

func TestSummarizeUsesInMemoryEntries(t *testing.T) {
	c := New(NewMemoryStore(), 5, 10, nil, nil)
	ctx := context.Background()
	c.Insert(ctx, NewExchange("fever since morning", "Drink plenty of fluids and rest well.", "health", "en"))
	c.Insert(ctx, NewExchange("ration card", "Visit the nearest centre.", "schemes", "en"))

	want := "Offline mode: Here are your last 2 cached responses:\n\n" +
		"1. ration card\n→ Visit the ...\n\n" +
		"2. fever since morning\n→ Drink plen..."
	require.Equal(t, want, c.Summarize(5))
	require.Contains(t, c.Summarize(1), "last 1 cached responses")
}

func utterances(entries []Exchange) []string {
	out := make([]string, 0, len(entries))
	for _, ex := range entries {
		out = append(out, ex.Utterance)
	}
	return out
}
