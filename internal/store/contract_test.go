package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/ledger/ledgertest"
	"github.com/roach88/windi/internal/registry"
	"github.com/roach88/windi/internal/registry/registrytest"
	"github.com/roach88/windi/internal/testutil"
)

func TestLedgerStore_Contract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		return createTestStore(t).Ledger()
	})
}

func TestRegistryStore_Contract(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) registry.Store {
		return createTestStore(t).Registry()
	})
}

func TestLedgerStore_ConcurrentAppends(t *testing.T) {
	s := createTestStore(t)
	l := ledger.New(s.Ledger())
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Append(ctx, ledger.Event{
				Actor:   "maria.santos",
				Action:  "governance.decision",
				Payload: canon.Object{"n": canon.Int(i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	report, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, n, report.Length)
}

// slowLedgerStore widens the gap between reading the tip and inserting.
type slowLedgerStore struct {
	*LedgerStore
}

func (s slowLedgerStore) Append(ctx context.Context, build ledger.BuildFunc) (ledger.Entry, error) {
	return s.LedgerStore.Append(ctx, func(tip string, seq int64) (ledger.Entry, error) {
		time.Sleep(2 * time.Millisecond)
		return build(tip, seq)
	})
}

func TestLedgerStore_AppendsFromSeparateHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	var ledgers []*ledger.Ledger
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		ledgers = append(ledgers, ledger.New(slowLedgerStore{s.Ledger()},
			ledger.WithIDGenerator(testutil.NewSequentialIDs(fmt.Sprintf("h%d", i)))))
	}

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledgers[i%2].Append(ctx, ledger.Event{
				Actor:   "maria.santos",
				Action:  "governance.decision",
				Payload: canon.Object{"n": canon.Int(i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	report, err := ledgers[0].VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, n, report.Length)
}

func TestLedgerStore_DetectsRowTampering(t *testing.T) {
	s := createTestStore(t)
	l := ledger.New(s.Ledger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, ledger.Event{
			Actor:   "maria.santos",
			Action:  "governance.decision",
			Payload: canon.Object{"level": canon.String("HIGH")},
		})
		require.NoError(t, err)
	}

	_, err := s.DB().Exec(`UPDATE ledger_entries SET payload = '{"level":"LOW"}' WHERE seq = 2`)
	require.NoError(t, err)

	report, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, int64(2), report.BrokenSeq)
}

func TestRegistryStore_SharesDatabaseWithLedger(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Registry().Insert(ctx, registrytest.Entry("A", "HIGH", "X", "2026-10-19T09:00:00.000000Z", true)))
	_, err := ledger.New(s.Ledger()).Append(ctx, ledger.Event{Actor: "maria.santos", Action: "registry.register"})
	require.NoError(t, err)

	st, err := s.Registry().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}
