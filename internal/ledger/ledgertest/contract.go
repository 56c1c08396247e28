// Package ledgertest holds the behavioural contract every ledger.Store
// implementation must satisfy.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/ledger"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) ledger.Store

// chain builds n linked entries.
func chain(t *testing.T, n int) []ledger.Entry {
	t.Helper()
	out := make([]ledger.Entry, 0, n)
	prev := ledger.Genesis
	for i := 1; i <= n; i++ {
		actor := "maria.santos"
		if i%2 == 0 {
			actor = "joao.pereira"
		}
		e := ledger.Entry{
			ID:        fmt.Sprintf("evt-%04d", i),
			Seq:       int64(i),
			Timestamp: fmt.Sprintf("2026-10-19T09:30:%02d.000000Z", i),
			Actor:     actor,
			Action:    "governance.decision",
			Payload: canon.Object{
				"n":     canon.Int(i),
				"big":   canon.Int(1 << 60),
				"note":  canon.Null{},
				"level": canon.String("HIGH"),
			},
			PrevHash: prev,
		}
		h, err := ledger.ComputeHash(e)
		require.NoError(t, err)
		e.Hash = h
		prev = h
		out = append(out, e)
	}
	return out
}

// Run exercises every Store operation against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("empty tip", func(t *testing.T) {
		s := newStore(t)
		hash, seq, err := s.Tip(context.Background())
		require.NoError(t, err)
		assert.Empty(t, hash)
		assert.Zero(t, seq)
	})

	t.Run("insert and read back", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		entries := chain(t, 3)
		for _, e := range entries {
			require.NoError(t, s.Insert(ctx, e))
		}

		hash, seq, err := s.Tip(ctx)
		require.NoError(t, err)
		assert.Equal(t, entries[2].Hash, hash)
		assert.Equal(t, int64(3), seq)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, entries, all)

		report, err := ledger.Walk(all)
		require.NoError(t, err)
		assert.True(t, report.Valid)
	})

	t.Run("rejects fork and gap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		entries := chain(t, 3)
		require.NoError(t, s.Insert(ctx, entries[0]))

		fork := entries[0]
		fork.ID = "evt-fork"
		fork.Seq = 2
		assert.ErrorIs(t, s.Insert(ctx, fork), ledger.ErrChainConflict)

		assert.ErrorIs(t, s.Insert(ctx, entries[2]), ledger.ErrChainConflict)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("append builds on the tip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		entries := chain(t, 3)

		for i, want := range entries {
			got, err := s.Append(ctx, func(tip string, seq int64) (ledger.Entry, error) {
				assert.Equal(t, want.PrevHash, tip)
				assert.Equal(t, int64(i), seq)
				return want, nil
			})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, entries, all)
	})

	t.Run("append build error writes nothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("hash failed")

		_, err := s.Append(ctx, func(string, int64) (ledger.Entry, error) {
			return ledger.Entry{}, boom
		})
		assert.ErrorIs(t, err, boom)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("append rejects an entry that ignores the tip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		entries := chain(t, 2)
		require.NoError(t, s.Insert(ctx, entries[0]))

		_, err := s.Append(ctx, func(string, int64) (ledger.Entry, error) {
			fork := entries[0]
			fork.ID = "evt-fork"
			return fork, nil
		})
		assert.ErrorIs(t, err, ledger.ErrChainConflict)
	})

	t.Run("read filters newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, e := range chain(t, 5) {
			require.NoError(t, s.Insert(ctx, e))
		}

		got, err := s.Read(ctx, ledger.Filter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, "evt-0005", got[0].ID)

		got, err = s.Read(ctx, ledger.Filter{Actor: "joao.pereira", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "evt-0004", got[0].ID)
		assert.Equal(t, "evt-0002", got[1].ID)

		got, err = s.Read(ctx, ledger.Filter{Action: "governance.decision", Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "evt-0005", got[0].ID)

		got, err = s.Read(ctx, ledger.Filter{Action: "nothing", Limit: 2})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
