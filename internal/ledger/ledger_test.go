// internal/ledger/ledger_test.go
package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = Address("0xaaaa")
	bob   = Address("0xbbbb")
	carol = Address("0xcccc")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLedger(t *testing.T) (*Ledger, *Book, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	book := NewBook()
	for _, acct := range []Address{alice, bob, carol} {
		book.Deposit(acct, 1_000_000)
	}
	return New(book, WithClock(clock.Now)), book, clock
}

func createTestItem(t *testing.T, l *Ledger, owner Address, price, rentalPrice uint64) uint64 {
	t.Helper()
	id, _, err := l.CreateItem(owner, CreateItemParams{
		Title:       "Paper A",
		Description: "a research paper",
		ContentRef:  "bafy-test-ref",
		Price:       price,
		RentalPrice: rentalPrice,
	})
	require.NoError(t, err)
	return id
}

// escrowBank lets one payout fail to exercise the revert path.
type escrowBank struct {
	*Book
	failPay bool
}

func (b *escrowBank) Pay(to Address, amount uint64) error {
	if b.failPay {
		return errorf(KindTransport, "bank.pay", "transfer rejected")
	}
	return b.Book.Pay(to, amount)
}

func TestCreateItemAssignsIncreasingIDs(t *testing.T) {
	l, _, _ := newTestLedger(t)

	for want := uint64(1); want <= 5; want++ {
		id := createTestItem(t, l, alice, 100, 10)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, uint64(5), l.GetTotalItems())

	// Failed creations do not consume identifiers.
	_, _, err := l.CreateItem(alice, CreateItemParams{Title: "", ContentRef: "ref", Price: 1})
	require.Error(t, err)
	assert.Equal(t, uint64(5), l.GetTotalItems())

	id := createTestItem(t, l, bob, 100, 0)
	assert.Equal(t, uint64(6), id)
}

func TestCreateItemValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)

	cases := []struct {
		name   string
		params CreateItemParams
	}{
		{"empty title", CreateItemParams{ContentRef: "ref", Price: 100}},
		{"empty content ref", CreateItemParams{Title: "t", Price: 100}},
		{"no positive price", CreateItemParams{Title: "t", ContentRef: "ref"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := l.CreateItem(alice, tc.params)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindValidation))
		})
	}

	// Duplicate titles are allowed.
	createTestItem(t, l, alice, 100, 0)
	createTestItem(t, l, alice, 100, 0)
	assert.Equal(t, uint64(2), l.GetTotalItems())
}

func TestCreateItemInitialState(t *testing.T) {
	l, _, clock := newTestLedger(t)
	id := createTestItem(t, l, alice, 100, 10)

	item, err := l.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, alice, item.Owner)
	assert.True(t, item.Active)
	assert.Equal(t, clock.Now().Unix(), item.CreatedAt)
	assert.Zero(t, item.TotalRentals)
	assert.Zero(t, item.TotalRevenue)

	history, err := l.GetOwnershipHistory(id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, alice, history[0].Owner)
	assert.Zero(t, history[0].Price)

	assert.Equal(t, []uint64{id}, l.GetUserItems(alice))
}

func TestPurchaseItemTransfersOwnership(t *testing.T) {
	l, book, _ := newTestLedger(t)
	id := createTestItem(t, l, alice, 100, 10)

	require.NoError(t, book.Escrow(bob, 100))
	_, err := l.PurchaseItem(bob, id, 100)
	require.NoError(t, err)

	item, err := l.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, bob, item.Owner)

	history, err := l.GetOwnershipHistory(id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, bob, history[1].Owner)
	assert.Equal(t, uint64(100), history[1].Price)

	// Seller received the price.
	assert.Equal(t, uint64(1_000_100), book.Balance(alice))

	// New owner may update prices; the original owner may not.
	_, err = l.UpdateItemPrices(bob, id, 200, 20)
	require.NoError(t, err)
	_, err = l.UpdateItemPrices(alice, id, 300, 30)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthorization))
}

func TestPurchaseItemExcessRefunded(t *testing.T) {
	l, book, _ := newTestLedger(t)
	id := createTestItem(t, l, alice, 100, 0)

	require.NoError(t, book.Escrow(bob, 150))
	_, err := l.PurchaseItem(bob, id, 150)
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_100), book.Balance(alice))
	assert.Equal(t, uint64(999_900), book.Balance(bob)) // paid 100 of the 150 escrowed
}

func TestPurchaseItemPreconditions(t *testing.T) {
	l, book, _ := newTestLedger(t)
	notForSale := createTestItem(t, l, alice, 0, 10)
	forSale := createTestItem(t, l, alice, 100, 0)

	_, err := l.PurchaseItem(bob, 999, 100)
	assert.True(t, IsKind(err, KindNotFound))

	_, err = l.PurchaseItem(bob, notForSale, 100)
	assert.True(t, IsKind(err, KindState), "price=0 items are not for sale")

	_, err = l.PurchaseItem(bob, forSale, 99)
	assert.True(t, IsKind(err, KindInsufficientPayment))
	item, _ := l.GetItem(forSale)
	assert.Equal(t, alice, item.Owner, "owner unchanged after failed purchase")

	_, err = l.PurchaseItem(alice, forSale, 100)
	assert.True(t, IsKind(err, KindState), "self-purchase rejected")

	_, err = l.DeactivateItem(alice, forSale)
	require.NoError(t, err)
	require.NoError(t, book.Escrow(bob, 100))
	_, err = l.PurchaseItem(bob, forSale, 100)
	assert.True(t, IsKind(err, KindState), "inactive items cannot be purchased")
}

func TestPurchaseItemRevertsOnFailedPayout(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	bank := &escrowBank{Book: NewBook()}
	bank.Deposit(bob, 1_000)
	l := New(bank, WithClock(clock.Now))

	id, _, err := l.CreateItem(alice, CreateItemParams{Title: "t", ContentRef: "ref", Price: 100})
	require.NoError(t, err)

	bank.failPay = true
	require.NoError(t, bank.Escrow(bob, 100))
	_, err = l.PurchaseItem(bob, id, 100)
	require.Error(t, err)

	item, _ := l.GetItem(id)
	assert.Equal(t, alice, item.Owner, "ownership rolled back")
	history, _ := l.GetOwnershipHistory(id)
	assert.Len(t, history, 1, "history rolled back")
	assert.NotContains(t, l.GetUserItems(bob), id)
}

func TestPreviousOwnerIndexEntryKept(t *testing.T) {
	l, book, _ := newTestLedger(t)
	id := createTestItem(t, l, alice, 100, 0)

	require.NoError(t, book.Escrow(bob, 100))
	_, err := l.PurchaseItem(bob, id, 100)
	require.NoError(t, err)

	// The index lists items an account has ever owned; the owner field is
	// the authoritative current owner.
	assert.Contains(t, l.GetUserItems(alice), id)
	assert.Contains(t, l.GetUserItems(bob), id)
}

func TestRentalCostTruncates(t *testing.T) {
	// 1.5 days at 100/day costs 150.
	assert.Equal(t, uint64(150), RentalCost(129600, 100))
	// Below one day at 100/day rounds down.
	assert.Equal(t, uint64(99), RentalCost(86400-1, 100))
	assert.Equal(t, uint64(0), RentalCost(863, 100))
	assert.Equal(t, uint64(100), RentalCost(86400, 100))
}

func TestRentItem(t *testing.T) {
	l, book, clock := newTestLedger(t)
	id := createTestItem(t, l, alice, 0, 100)

	start := clock.Now().Unix()
	end := start + 129600 // 1.5 days

	require.NoError(t, book.Escrow(bob, 200))
	rentalID, _, err := l.RentItem(bob, RentItemParams{ItemID: id, StartTime: start, EndTime: end}, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rentalID)

	rental, err := l.GetRental(rentalID)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), rental.AmountPaid)
	assert.True(t, rental.Active)

	item, _ := l.GetItem(id)
	assert.Equal(t, uint64(1), item.TotalRentals)
	assert.Equal(t, uint64(150), item.TotalRevenue)

	// Owner got the cost, renter got the excess back.
	assert.Equal(t, uint64(1_000_150), book.Balance(alice))
	assert.Equal(t, uint64(999_850), book.Balance(bob))

	renters, err := l.GetItemRenters(id)
	require.NoError(t, err)
	assert.Equal(t, []Address{bob}, renters)
	assert.Equal(t, []uint64{rentalID}, l.GetUserRentals(bob))
}

func TestRentItemRepeatRenterListedOnce(t *testing.T) {
	l, book, clock := newTestLedger(t)
	id := createTestItem(t, l, alice, 0, 100)

	start := clock.Now().Unix()
	for i := 0; i < 3; i++ {
		require.NoError(t, book.Escrow(bob, 100))
		_, _, err := l.RentItem(bob, RentItemParams{ItemID: id, StartTime: start, EndTime: start + 86400}, 100)
		require.NoError(t, err)
	}

	renters, err := l.GetItemRenters(id)
	require.NoError(t, err)
	assert.Equal(t, []Address{bob}, renters, "repeat renter recorded once")
	assert.Len(t, l.GetUserRentals(bob), 3)
	assert.Equal(t, uint64(3), l.GetTotalRentals())
}

func TestRentItemWindowValidation(t *testing.T) {
	l, _, clock := newTestLedger(t)
	id := createTestItem(t, l, alice, 0, 100)
	now := clock.Now().Unix()

	cases := []struct {
		name       string
		start, end int64
	}{
		{"start in the past", now - 10, now + 86400},
		{"end before start", now + 86400, now + 100},
		{"end equals start", now + 100, now + 100},
		{"span beyond one year", now, now + maxRentalSpan + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := l.RentItem(bob, RentItemParams{ItemID: id, StartTime: tc.start, EndTime: tc.end}, 1_000_000)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindState))
		})
	}

	_, _, err := l.RentItem(alice, RentItemParams{ItemID: id, StartTime: now, EndTime: now + 86400}, 100)
	assert.True(t, IsKind(err, KindState), "self-rental rejected")

	_, _, err = l.RentItem(bob, RentItemParams{ItemID: id, StartTime: now, EndTime: now + 86400}, 99)
	assert.True(t, IsKind(err, KindInsufficientPayment))
}

func TestHasActiveRentalFollowsTimeWindow(t *testing.T) {
	l, book, clock := newTestLedger(t)
	id := createTestItem(t, l, alice, 0, 100)

	start := clock.Now().Unix() + 3600
	end := start + 86400
	require.NoError(t, book.Escrow(bob, 100))
	_, _, err := l.RentItem(bob, RentItemParams{ItemID: id, StartTime: start, EndTime: end}, 100)
	require.NoError(t, err)

	assert.False(t, l.HasActiveRental(id, bob), "window not yet open")

	clock.Advance(time.Hour)
	assert.True(t, l.HasActiveRental(id, bob), "window open")
	assert.False(t, l.HasActiveRental(id, carol))

	clock.Advance(24 * time.Hour)
	assert.True(t, l.HasActiveRental(id, bob), "end time is inclusive")

	clock.Advance(time.Second)
	assert.False(t, l.HasActiveRental(id, bob), "window closed")

	// The stored flag never changed; only the window matters.
	rental, err := l.GetRental(1)
	require.NoError(t, err)
	assert.True(t, rental.Active)
}

func TestGetActiveItemsFixedWindow(t *testing.T) {
	l, _, _ := newTestLedger(t)
	for i := 0; i < 5; i++ {
		createTestItem(t, l, alice, 100, 10)
	}
	_, err := l.DeactivateItem(alice, 3)
	require.NoError(t, err)

	items, err := l.GetActiveItems(0, 5)
	require.NoError(t, err)
	require.Len(t, items, 4, "inactive item skipped without widening the window")
	ids := make([]uint64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	assert.Equal(t, []uint64{1, 2, 4, 5}, ids)

	// Window is over identifiers, not the active subset.
	items, err = l.GetActiveItems(2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(4), items[0].ID)

	// Limit caps at the total.
	items, err = l.GetActiveItems(4, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(5), items[0].ID)

	_, err = l.GetActiveItems(5, 1)
	assert.True(t, IsKind(err, KindValidation), "offset beyond total fails")
}

func TestDeactivateItemIdempotent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	id := createTestItem(t, l, alice, 100, 10)

	_, err := l.DeactivateItem(alice, id)
	require.NoError(t, err)
	item, _ := l.GetItem(id)
	assert.False(t, item.Active)

	// Second call behaves exactly like the first, owner gate included.
	_, err = l.DeactivateItem(alice, id)
	require.NoError(t, err)
	item, _ = l.GetItem(id)
	assert.False(t, item.Active)

	_, err = l.DeactivateItem(bob, id)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthorization))
}

func TestUpdateItemPricesOverwritesBoth(t *testing.T) {
	l, _, _ := newTestLedger(t)
	id := createTestItem(t, l, alice, 100, 10)

	_, err := l.UpdateItemPrices(alice, id, 200, 0)
	require.NoError(t, err)
	item, _ := l.GetItem(id)
	assert.Equal(t, uint64(200), item.Price)
	assert.Zero(t, item.RentalPrice, "both fields overwritten unconditionally")

	_, err = l.UpdateItemPrices(alice, id, 0, 0)
	assert.True(t, IsKind(err, KindValidation))

	_, err = l.UpdateItemPrices(alice, 999, 10, 10)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestMarketplaceScenario(t *testing.T) {
	// create → purchase → new owner controls prices.
	l, book, _ := newTestLedger(t)
	id, _, err := l.CreateItem(alice, CreateItemParams{
		Title:      "Paper A",
		ContentRef: "bafy-paper-a",
		Price:      100, RentalPrice: 10,
	})
	require.NoError(t, err)

	require.NoError(t, book.Escrow(bob, 100))
	_, err = l.PurchaseItem(bob, id, 100)
	require.NoError(t, err)

	item, _ := l.GetItem(id)
	assert.Equal(t, bob, item.Owner)
	assert.Equal(t, uint64(1_000_100), book.Balance(alice))
	history, _ := l.GetOwnershipHistory(id)
	assert.Len(t, history, 2)

	_, err = l.UpdateItemPrices(bob, id, 200, 20)
	require.NoError(t, err)
	_, err = l.UpdateItemPrices(alice, id, 200, 20)
	assert.True(t, IsKind(err, KindAuthorization))
}
