// internal/ledger/chain_test.go
package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T) (*Chain, *Book) {
	t.Helper()
	book := NewBook()
	for _, acct := range []Address{alice, bob, carol} {
		book.Deposit(acct, 1_000_000)
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewChain(New(book, WithClock(clock.Now)))
	t.Cleanup(c.Close)
	return c, book
}

func TestChainCreateItemReceipt(t *testing.T) {
	c, _ := newTestChain(t)

	gas, err := c.EstimateGas(OpCreateItem)
	require.NoError(t, err)

	pending, err := c.SubmitCreateItem(alice, gas, CreateItemParams{
		Title: "t", ContentRef: "ref", Price: 100,
	})
	require.NoError(t, err)

	receipt, err := pending.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, receipt.Err)
	assert.Equal(t, uint64(1), receipt.Result)
	assert.Equal(t, gas, receipt.GasUsed)

	require.Len(t, receipt.Events, 1)
	created, ok := receipt.Events[0].(ItemCreated)
	require.True(t, ok)
	assert.Equal(t, uint64(1), created.ItemID)
	assert.Equal(t, alice, created.Owner)
}

func TestChainGasLimitEnforced(t *testing.T) {
	c, _ := newTestChain(t)

	pending, err := c.SubmitCreateItem(alice, 1, CreateItemParams{
		Title: "t", ContentRef: "ref", Price: 100,
	})
	require.NoError(t, err)

	receipt, err := pending.Wait(context.Background())
	require.NoError(t, err)
	require.Error(t, receipt.Err)
	assert.True(t, IsKind(receipt.Err, KindValidation))

	total, err := c.GetTotalItems()
	require.NoError(t, err)
	assert.Zero(t, total, "no state change on out-of-gas")
}

func TestChainEscrowRefundedOnFailedOp(t *testing.T) {
	c, book := newTestChain(t)

	// Purchase of a nonexistent item: the escrowed payment comes back whole.
	pending, err := c.SubmitPurchaseItem(bob, gasCosts[OpPurchaseItem], 42, 500)
	require.NoError(t, err)
	receipt, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, IsKind(receipt.Err, KindNotFound))
	assert.Equal(t, uint64(1_000_000), book.Balance(bob))
}

func TestChainSerializesConcurrentPurchases(t *testing.T) {
	c, _ := newTestChain(t)

	pending, err := c.SubmitCreateItem(alice, gasCosts[OpCreateItem], CreateItemParams{
		Title: "t", ContentRef: "ref", Price: 100,
	})
	require.NoError(t, err)
	receipt, err := pending.Wait(context.Background())
	require.NoError(t, err)
	itemID := receipt.Result

	// The same buyer races two purchase submissions; the transactions are
	// applied in a total order, so exactly one commits and the other fails
	// the owner check against the already-updated state.
	receipts := make([]*Receipt, 2)
	var wg sync.WaitGroup
	for i := range receipts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.SubmitPurchaseItem(bob, gasCosts[OpPurchaseItem], itemID, 100)
			require.NoError(t, err)
			r, err := p.Wait(context.Background())
			require.NoError(t, err)
			receipts[i] = r
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range receipts {
		if r.Err == nil {
			succeeded++
		} else {
			assert.True(t, IsKind(r.Err, KindState), "loser fails the owner check")
		}
	}
	assert.Equal(t, 1, succeeded)

	history, err := c.GetOwnershipHistory(itemID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "exactly one ownership transfer recorded")
}

func TestChainClosedIsUnreachable(t *testing.T) {
	book := NewBook()
	c := NewChain(New(book))
	c.Close()

	_, err := c.SubmitCreateItem(alice, gasCosts[OpCreateItem], CreateItemParams{
		Title: "t", ContentRef: "ref", Price: 1,
	})
	assert.True(t, IsKind(err, KindTransport))

	_, err = c.GetTotalItems()
	assert.True(t, IsKind(err, KindTransport))

	c.Close() // second close is a no-op
}

func TestChainWaitHonorsContext(t *testing.T) {
	c, _ := newTestChain(t)

	pending, err := c.SubmitCreateItem(alice, gasCosts[OpCreateItem], CreateItemParams{
		Title: "t", ContentRef: "ref", Price: 1,
	})
	require.NoError(t, err)

	// A generous deadline; the in-process host confirms almost immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	receipt, err := pending.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, receipt.Err)
}
