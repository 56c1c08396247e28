// Package registrytest holds the behavioural contract every registry.Store
// implementation must satisfy.
package registrytest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/windi/internal/registry"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) registry.Store

// Entry builds a test entry.
func Entry(id, level, entity, registeredAt string, sealed bool) registry.Entry {
	e := registry.Entry{
		SubmissionID:    id,
		DocumentID:      "doc-" + id,
		RecordID:        "rec-" + id,
		ProfileID:       "central-bank",
		GovernanceLevel: level,
		PolicyVersion:   "2026.1",
		ConfigHash:      "cfg",
		ReportingEntity: entity,
		ReferencePeriod: "2026-Q3",
		RegisteredAt:    registeredAt,
	}
	if sealed {
		e.IntegrityHash = "sealed-" + id
	}
	return e
}

// Run exercises every Store operation against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("increment is per key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for want := 1; want <= 3; want++ {
			n, err := s.Increment(ctx, "submissions", "REG-20261019")
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
		n, err := s.Increment(ctx, "submissions", "REG-20261020")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.Increment(ctx, "other", "REG-20261019")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("concurrent increments are contiguous", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 32
		var wg sync.WaitGroup
		results := make(chan int, workers)
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := s.Increment(ctx, "submissions", "REG-20261019")
				if err != nil {
					errs <- err
					return
				}
				results <- n
			}()
		}
		wg.Wait()
		close(results)
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var got []int
		for n := range results {
			got = append(got, n)
		}
		sort.Ints(got)
		require.Len(t, got, workers)
		for i, n := range got {
			assert.Equal(t, i+1, n)
		}
	})

	t.Run("insert updates stats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Insert(ctx, Entry("A", "HIGH", "Banco Central", "2026-10-19T09:00:00.000000Z", true)))
		require.NoError(t, s.Insert(ctx, Entry("B", "HIGH", "Banco Central", "2026-10-19T10:00:00.000000Z", true)))
		require.NoError(t, s.Insert(ctx, Entry("C", "MEDIUM", "", "2026-10-19T11:00:00.000000Z", false)))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, st.Total)
		assert.Equal(t, map[string]int{"HIGH": 2, "MEDIUM": 1}, st.ByLevel)
		assert.Equal(t, map[string]int{"Banco Central": 2, "central-bank": 1}, st.ByEntity)
	})

	t.Run("duplicate insert rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Insert(ctx, Entry("A", "HIGH", "X", "2026-10-19T09:00:00.000000Z", true)))
		err := s.Insert(ctx, Entry("A", "LOW", "Y", "2026-10-19T09:00:01.000000Z", true))
		assert.True(t, errors.Is(err, registry.ErrDuplicate), "got %v", err)

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Total)
	})

	t.Run("get and mark verified", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, Entry("A", "HIGH", "X", "2026-10-19T09:00:00.000000Z", true)))

		e, err := s.Get(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 0, e.VerifiedCount)
		assert.Equal(t, "2026-Q3", e.ReferencePeriod)

		e, err = s.MarkVerified(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 1, e.VerifiedCount)
		e, err = s.MarkVerified(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 2, e.VerifiedCount)

		e, err = s.Get(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 2, e.VerifiedCount)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, registry.ErrNotFound)
		_, err = s.MarkVerified(ctx, "missing")
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("query filters and orders", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, e := range []registry.Entry{
			Entry("A", "HIGH", "Banco Central do Brasil", "2026-10-17T09:00:00.000000Z", true),
			Entry("B", "MEDIUM", "Ministério da Fazenda", "2026-10-18T09:00:00.000000Z", true),
			Entry("C", "HIGH", "BANCO DE PORTUGAL", "2026-10-19T09:00:00.000000Z", true),
			Entry("D", "LOW", "", "2026-10-20T09:00:00.000000Z", false),
		} {
			require.NoError(t, s.Insert(ctx, e), "entry %d", i)
		}

		tests := []struct {
			name string
			q    registry.Query
			want []string
		}{
			{"all newest first", registry.Query{}, []string{"D", "C", "B", "A"}},
			{"level exact", registry.Query{Level: "HIGH"}, []string{"C", "A"}},
			{"entity substring any case", registry.Query{Entity: "banco"}, []string{"C", "A"}},
			{"entity non-ascii fold", registry.Query{Entity: "MINISTÉRIO"}, []string{"B"}},
			{"after inclusive", registry.Query{After: "2026-10-19T09:00:00.000000Z"}, []string{"D", "C"}},
			{"before inclusive", registry.Query{Before: "2026-10-18T09:00:00.000000Z"}, []string{"B", "A"}},
			{"window", registry.Query{After: "2026-10-18T00:00:00.000000Z", Before: "2026-10-19T23:59:59.999999Z"}, []string{"C", "B"}},
			{"limit", registry.Query{Limit: 2}, []string{"D", "C"}},
			{"offset pages", registry.Query{Limit: 2, Offset: 2}, []string{"B", "A"}},
			{"offset without limit", registry.Query{Offset: 3}, []string{"A"}},
			{"offset past end", registry.Query{Limit: 2, Offset: 4}, []string{}},
			{"exact entity any case", registry.Query{Entity: "banco de portugal", ExactEntity: true}, []string{"C"}},
			{"exact entity ignores longer names", registry.Query{Entity: "banco", ExactEntity: true}, []string{}},
			{"no match", registry.Query{Level: "HIGH", Entity: "fazenda"}, []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.Query(ctx, tt.q)
				require.NoError(t, err)
				ids := make([]string, 0, len(got))
				for _, e := range got {
					ids = append(ids, e.SubmissionID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})

	t.Run("seal counts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		total, sealed, err := s.SealCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Equal(t, 0, sealed)

		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("S%d", i)
			require.NoError(t, s.Insert(ctx, Entry(id, "HIGH", "X", "2026-10-19T09:00:00.000000Z", i != 1)))
		}
		total, sealed, err = s.SealCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, 2, sealed)
	})
}
