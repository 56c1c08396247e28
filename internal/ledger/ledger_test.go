package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/metrics"
	windtest "github.com/roach88/windi/internal/testutil"
)

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	base := []Option{
		WithClock(windtest.NewDefaultClock()),
		WithIDGenerator(windtest.NewSequentialIDs("evt")),
	}
	return New(store, append(base, opts...)...), store
}

func decision(actor string) Event {
	return Event{
		Actor:  actor,
		Action: "governance.decision",
		Payload: canon.Object{
			"governance_level": canon.String("HIGH"),
			"submission_id":    canon.String("REG-20261019-0001"),
		},
	}
}

func TestAppend_Genesis(t *testing.T) {
	l, _ := newTestLedger(t)

	r, err := l.Append(context.Background(), decision("maria.santos"))
	require.NoError(t, err)

	assert.Equal(t, "evt-0001", r.ID)
	assert.Equal(t, Genesis, r.PrevHash)
	assert.Len(t, r.Hash, 64)
}

func TestAppend_LinksEntries(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var receipts []Receipt
	for i := 0; i < 5; i++ {
		r, err := l.Append(ctx, decision("maria.santos"))
		require.NoError(t, err)
		receipts = append(receipts, r)
	}

	for i := 1; i < len(receipts); i++ {
		assert.Equal(t, receipts[i-1].Hash, receipts[i].PrevHash, "entry %d", i)
	}

	report, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 5, report.Length)
	assert.Equal(t, receipts[4].Hash, report.TipHash)
}

func TestAppend_StoredHashesRecompute(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, decision("maria.santos"))
		require.NoError(t, err)
	}

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, Genesis, all[0].PrevHash)
	for i, e := range all {
		h, err := ComputeHash(e)
		require.NoError(t, err)
		assert.Equal(t, e.Hash, h)
		assert.Equal(t, int64(i+1), e.Seq)
		if i > 0 {
			assert.Equal(t, all[i-1].Hash, e.PrevHash)
		}
	}
}

func TestAppend_DoesNotAliasPayload(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	ev := decision("maria.santos")
	_, err := l.Append(ctx, ev)
	require.NoError(t, err)

	ev.Payload["governance_level"] = canon.String("LOW")

	report, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, canon.String("HIGH"), all[0].Payload["governance_level"])
}

func TestAppend_GateRejectionsArePersistedNowhere(t *testing.T) {
	m := metrics.New()
	l, store := newTestLedger(t, WithMetrics(m))
	ctx := context.Background()

	tests := []struct {
		name string
		ev   Event
		kind InvariantKind
	}{
		{"ai actor prefix", decision("ai:drafting-assistant"), KindNonHumanActor},
		{"ai actor token", decision("GPT-4 Reviewer"), KindNonHumanActor},
		{"personal data key", Event{
			Actor:   "maria.santos",
			Action:  "governance.decision",
			Payload: canon.Object{"contact": canon.Object{"Email": canon.String("x")}},
		}, KindPersonalData},
		{"personal data value", Event{
			Actor:   "maria.santos",
			Action:  "governance.decision",
			Payload: canon.Object{"note": canon.String("reach me at jane@example.org")},
		}, KindPersonalData},
		{"remote origin", Event{
			Actor:  "maria.santos",
			Action: "governance.decision",
			Origin: "203.0.113.7:443",
		}, KindRemoteWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Append(ctx, tt.ev)
			require.Error(t, err)
			assert.True(t, IsInvariantViolation(err, tt.kind), "got %v", err)
		})
	}

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LedgerAppends))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerRejections.WithLabelValues(string(KindNonHumanActor))))
}

func TestAppend_UnconfirmedBinding(t *testing.T) {
	l, _ := newTestLedger(t, WithBinding(Binding{Address: "127.0.0.1:8470"}))

	_, err := l.Append(context.Background(), decision("maria.santos"))
	assert.True(t, IsInvariantViolation(err, KindRemoteWrite))
}

func TestAppend_InvalidEvent(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Append(context.Background(), Event{Actor: "maria.santos"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = l.Append(context.Background(), Event{Action: "x"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestAppend_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	l := New(store)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Append(ctx, Event{
				Actor:   fmt.Sprintf("officer-%d", i),
				Action:  "governance.decision",
				Payload: canon.Object{"n": canon.Int(i)},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	report, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, n, report.Length)
}

func TestStore_RejectsFork(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := Entry{ID: "a", Seq: 1, Timestamp: "t", Actor: "x", Action: "y", PrevHash: Genesis}
	first.Hash, _ = ComputeHash(first)
	require.NoError(t, store.Insert(ctx, first))

	fork := Entry{ID: "b", Seq: 2, Timestamp: "t", Actor: "x", Action: "y", PrevHash: Genesis}
	fork.Hash, _ = ComputeHash(fork)
	assert.ErrorIs(t, store.Insert(ctx, fork), ErrChainConflict)
}

func TestRead_FilterAndOrder(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ev := decision("maria.santos")
		if i%2 == 1 {
			ev.Actor = "joao.pereira"
			ev.Action = "registry.lookup"
		}
		_, err := l.Append(ctx, ev)
		require.NoError(t, err)
	}

	all, err := l.Read(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "evt-0004", all[0].ID)
	assert.Equal(t, "evt-0001", all[3].ID)

	byAction, err := l.Read(ctx, Filter{Action: "registry.lookup"})
	require.NoError(t, err)
	require.Len(t, byAction, 2)
	assert.Equal(t, "evt-0004", byAction[0].ID)

	byActor, err := l.Read(ctx, Filter{Actor: "maria.santos", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "evt-0003", byActor[0].ID)
}

func TestFilter_LimitBounds(t *testing.T) {
	assert.Equal(t, DefaultReadLimit, Filter{}.normalized().Limit)
	assert.Equal(t, DefaultReadLimit, Filter{Limit: -3}.normalized().Limit)
	assert.Equal(t, MaxReadLimit, Filter{Limit: 10_000}.normalized().Limit)
	assert.Equal(t, 7, Filter{Limit: 7}.normalized().Limit)
}

func TestWalk_DetectsTampering(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, decision("maria.santos"))
		require.NoError(t, err)
	}
	all, err := store.All(ctx)
	require.NoError(t, err)

	t.Run("payload edited", func(t *testing.T) {
		entries := append([]Entry(nil), all...)
		entries[1].Payload = canon.Object{"governance_level": canon.String("LOW")}

		report, err := Walk(entries)
		require.NoError(t, err)
		assert.False(t, report.Valid)
		assert.Equal(t, int64(2), report.BrokenSeq)
		assert.Contains(t, report.Reason, "stored hash")
	})

	t.Run("entry removed", func(t *testing.T) {
		entries := []Entry{all[0], all[2]}

		report, err := Walk(entries)
		require.NoError(t, err)
		assert.False(t, report.Valid)
		assert.Equal(t, int64(3), report.BrokenSeq)
		assert.Contains(t, report.Reason, "does not link")
	})

	t.Run("empty chain", func(t *testing.T) {
		report, err := Walk(nil)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.Empty(t, report.TipHash)
	})
}

func TestComputeHash_SeparatorSafe(t *testing.T) {
	a := Entry{ID: "1", Timestamp: "t", Actor: "a|b", Action: "c", PrevHash: Genesis}
	b := Entry{ID: "1", Timestamp: "t", Actor: "a", Action: "b|c", PrevHash: Genesis}

	ha, err := ComputeHash(a)
	require.NoError(t, err)
	hb, err := ComputeHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}
