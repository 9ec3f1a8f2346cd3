// internal/services/ledger_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/dipm-backend/internal/config"
	"github.com/javajoker/dipm-backend/internal/ledger"
)

const (
	sellerWallet = "0x1111111111111111111111111111111111111111"
	buyerWallet  = "0x2222222222222222222222222222222222222222"
)

func newTestLedgerService(t *testing.T) (*LedgerService, *ledger.Book, *ledger.Chain) {
	t.Helper()
	cfg := &config.Config{
		Ledger: config.LedgerConfig{
			GasMarginPercent: 20,
			ConfirmTimeout:   5,
			MinorUnitScale:   100,
		},
	}
	book := ledger.NewBook()
	book.Deposit(ledger.Address(sellerWallet), 1_000_000)
	book.Deposit(ledger.Address(buyerWallet), 1_000_000)

	chain := ledger.NewChain(ledger.New(book))
	t.Cleanup(chain.Close)

	return NewLedgerService(chain, cfg), book, chain
}

func registerTestItem(t *testing.T, svc *LedgerService, price, rentalPrice float64) uint64 {
	t.Helper()
	itemID, err := svc.RegisterItem(context.Background(), sellerWallet, &RegisterItemRequest{
		Title:       "Sample Artwork",
		Description: "a digital painting",
		ContentRef:  "abc123def456",
		Price:       price,
		RentalPrice: rentalPrice,
	})
	require.NoError(t, err)
	return itemID
}

func TestMinorUnitConversion(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)

	assert.Equal(t, uint64(1050), svc.ToMinorUnits(10.50))
	assert.Equal(t, uint64(0), svc.ToMinorUnits(0))
	assert.Equal(t, uint64(1), svc.ToMinorUnits(0.01))
	assert.Equal(t, uint64(0), svc.ToMinorUnits(-5))

	// Float artifacts must round to the intended cent
	assert.Equal(t, uint64(1056), svc.ToMinorUnits(10.555))
	assert.Equal(t, uint64(30), svc.ToMinorUnits(0.1+0.2))

	assert.Equal(t, 10.50, svc.ToDisplayUnits(1050))
	assert.Equal(t, 0.01, svc.ToDisplayUnits(1))
}

func TestGasLimitIncludesMargin(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)

	limit, err := svc.gasLimit(ledger.OpCreateItem)
	require.NoError(t, err)
	assert.Equal(t, uint64(108_000), limit) // 90000 + 20%

	_, err = svc.gasLimit("unknownOp")
	require.Error(t, err)
}

func TestRegisterItemReturnsLedgerID(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)

	first := registerTestItem(t, svc, 25.00, 1.50)
	second := registerTestItem(t, svc, 40.00, 2.00)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	item, err := svc.GetItem(first)
	require.NoError(t, err)
	assert.Equal(t, "Sample Artwork", item.Title)
	assert.Equal(t, sellerWallet, item.Owner)
	assert.Equal(t, 25.00, item.Price)
	assert.Equal(t, 1.50, item.RentalPrice)
	assert.True(t, item.Active)
}

func TestRegisterItemValidationSurfaces(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)

	_, err := svc.RegisterItem(context.Background(), sellerWallet, &RegisterItemRequest{
		Title:      "",
		ContentRef: "ref",
		Price:      1,
	})
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindValidation))
}

func TestPurchaseItemMovesOwnershipAndFunds(t *testing.T) {
	svc, book, _ := newTestLedgerService(t)
	itemID := registerTestItem(t, svc, 100.00, 0)

	sellerBefore := book.Balance(ledger.Address(sellerWallet))

	err := svc.PurchaseItem(context.Background(), buyerWallet, itemID, 100.00)
	require.NoError(t, err)

	item, err := svc.GetItem(itemID)
	require.NoError(t, err)
	assert.Equal(t, buyerWallet, item.Owner)

	assert.Equal(t, sellerBefore+10_000, book.Balance(ledger.Address(sellerWallet)))
	assert.Equal(t, uint64(1_000_000-10_000), book.Balance(ledger.Address(buyerWallet)))

	owns, err := svc.IsItemOwner(itemID, buyerWallet)
	require.NoError(t, err)
	assert.True(t, owns)
}

func TestPurchaseItemInsufficientPayment(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)
	itemID := registerTestItem(t, svc, 100.00, 0)

	err := svc.PurchaseItem(context.Background(), buyerWallet, itemID, 99.99)
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindInsufficientPayment))
}

func TestRentItemAndQuote(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)
	itemID := registerTestItem(t, svc, 100.00, 2.00)

	start := time.Now().Add(time.Hour)
	end := start.Add(36 * time.Hour)

	// 36h at 2.00/day is 3.00, truncated at the minor-unit level
	cost, err := svc.QuoteRentalCost(itemID, start, end)
	require.NoError(t, err)
	assert.Equal(t, 3.00, cost)

	rentalID, err := svc.RentItem(context.Background(), buyerWallet, itemID, start, end, cost)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rentalID)

	rental, err := svc.GetRental(rentalID)
	require.NoError(t, err)
	assert.Equal(t, itemID, rental.ItemID)
	assert.Equal(t, buyerWallet, rental.Renter)
	assert.Equal(t, 3.00, rental.AmountPaid)

	renters, err := svc.GetItemRenters(itemID)
	require.NoError(t, err)
	assert.Equal(t, []string{buyerWallet}, renters)
}

func TestOwnershipHistoryConversion(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)
	itemID := registerTestItem(t, svc, 50.00, 0)

	require.NoError(t, svc.PurchaseItem(context.Background(), buyerWallet, itemID, 50.00))

	history, err := svc.GetOwnershipHistory(itemID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, sellerWallet, history[0].Owner)
	assert.Equal(t, 0.0, history[0].Price)
	assert.Equal(t, buyerWallet, history[1].Owner)
	assert.Equal(t, 50.00, history[1].Price)
}

func TestReadsDegradeWhenChainClosed(t *testing.T) {
	svc, _, chain := newTestLedgerService(t)
	registerTestItem(t, svc, 10.00, 0)

	chain.Close()

	_, err := svc.GetActiveItems(0, 10)
	require.Error(t, err)
	assert.True(t, Unavailable(err))

	_, err = svc.GetUserItems(sellerWallet)
	require.Error(t, err)
	assert.True(t, Unavailable(err))

	_, err = svc.Balance(sellerWallet)
	require.Error(t, err)
	assert.True(t, Unavailable(err))

	// A definitive ledger answer is not "unavailable"
	svc2, _, _ := newTestLedgerService(t)
	_, err = svc2.GetItem(99)
	require.Error(t, err)
	assert.False(t, Unavailable(err))
}

func TestWritesFailWhenChainClosed(t *testing.T) {
	svc, _, chain := newTestLedgerService(t)
	chain.Close()

	_, err := svc.RegisterItem(context.Background(), sellerWallet, &RegisterItemRequest{
		Title:      "late",
		ContentRef: "ref",
	})
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindTransport))
}

func TestDeactivateAndPriceUpdate(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)
	itemID := registerTestItem(t, svc, 10.00, 1.00)

	require.NoError(t, svc.UpdateItemPrices(context.Background(), sellerWallet, itemID, 12.34, 0.50))

	item, err := svc.GetItem(itemID)
	require.NoError(t, err)
	assert.Equal(t, 12.34, item.Price)
	assert.Equal(t, 0.50, item.RentalPrice)

	// Only the owner may deactivate
	err = svc.DeactivateItem(context.Background(), buyerWallet, itemID)
	require.Error(t, err)
	assert.True(t, ledger.IsKind(err, ledger.KindAuthorization))

	require.NoError(t, svc.DeactivateItem(context.Background(), sellerWallet, itemID))

	items, err := svc.GetActiveItems(0, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestActiveItemsWindow(t *testing.T) {
	svc, _, _ := newTestLedgerService(t)
	for i := 0; i < 5; i++ {
		registerTestItem(t, svc, 10.00, 0)
	}
	require.NoError(t, svc.DeactivateItem(context.Background(), sellerWallet, 3))

	items, err := svc.GetActiveItems(0, 5)
	require.NoError(t, err)

	ids := make([]uint64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []uint64{1, 2, 4, 5}, ids)

	_, err = svc.GetActiveItems(5, 5)
	require.Error(t, err)
}
