// internal/ledger/ledger.go
package ledger

import (
	"sync"
	"time"
)

// Address identifies an account on the ledger.
type Address string

const (
	secondsPerDay = 86400
	maxRentalSpan = 365 * secondsPerDay
	firstItemID   = 1
	firstRentalID = 1
)

// Item is a registered IP asset. Owner mutates on purchase; prior owners are
// preserved in the ownership history and never rewritten.
type Item struct {
	ID           uint64  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	ContentRef   string  `json:"content_ref"`
	Owner        Address `json:"owner"`
	Price        uint64  `json:"price"`
	RentalPrice  uint64  `json:"rental_price"` // minor units per day
	Active       bool    `json:"active"`
	CreatedAt    int64   `json:"created_at"`
	TotalRentals uint64  `json:"total_rentals"`
	TotalRevenue uint64  `json:"total_revenue"`
}

// OwnershipRecord is an append-only history entry. Price is zero for the
// creation record.
type OwnershipRecord struct {
	Owner     Address `json:"owner"`
	Timestamp int64   `json:"timestamp"`
	Price     uint64  `json:"price"`
}

// Rental is a time-boxed access grant. The Active flag is written once at
// creation and is informational only; whether a rental is currently active
// is always decided by the stored time window.
type Rental struct {
	ID         uint64  `json:"id"`
	ItemID     uint64  `json:"item_id"`
	Renter     Address `json:"renter"`
	StartTime  int64   `json:"start_time"`
	EndTime    int64   `json:"end_time"`
	AmountPaid uint64  `json:"amount_paid"`
	Active     bool    `json:"active"`
}

// Ledger is the authoritative marketplace state machine. All state-changing
// operations are serialized by a single mutex and apply either fully or not
// at all. Bookkeeping state is mutated before any value transfer; a failed
// payout rolls the mutation back.
type Ledger struct {
	mu   sync.Mutex
	now  func() time.Time
	bank Bank

	items        map[uint64]*Item
	rentals      map[uint64]*Rental
	history      map[uint64][]OwnershipRecord
	itemRenters  map[uint64][]Address
	hasRented    map[uint64]map[Address]bool
	userItems    map[Address][]uint64
	userRentals  map[Address][]uint64
	nextItemID   uint64
	nextRentalID uint64
}

type Option func(*Ledger)

// WithClock overrides the ledger clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(bank Bank, opts ...Option) *Ledger {
	l := &Ledger{
		now:          time.Now,
		bank:         bank,
		items:        make(map[uint64]*Item),
		rentals:      make(map[uint64]*Rental),
		history:      make(map[uint64][]OwnershipRecord),
		itemRenters:  make(map[uint64][]Address),
		hasRented:    make(map[uint64]map[Address]bool),
		userItems:    make(map[Address][]uint64),
		userRentals:  make(map[Address][]uint64),
		nextItemID:   firstItemID,
		nextRentalID: firstRentalID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Bank() Bank { return l.bank }

type CreateItemParams struct {
	Title       string
	Description string
	ContentRef  string
	Price       uint64
	RentalPrice uint64
}

// CreateItem registers a new item owned by the caller and returns its id.
// Titles are not unique keys; duplicates are allowed.
func (l *Ledger) CreateItem(caller Address, p CreateItemParams) (uint64, []Event, error) {
	const op = "ledger.createItem"

	l.mu.Lock()
	defer l.mu.Unlock()

	if p.Title == "" {
		return 0, nil, errorf(KindValidation, op, "title must not be empty")
	}
	if p.ContentRef == "" {
		return 0, nil, errorf(KindValidation, op, "content reference must not be empty")
	}
	if p.Price == 0 && p.RentalPrice == 0 {
		return 0, nil, errorf(KindValidation, op, "at least one of price or rental price must be positive")
	}

	id := l.nextItemID
	l.nextItemID++

	now := l.now().Unix()
	item := &Item{
		ID:          id,
		Title:       p.Title,
		Description: p.Description,
		ContentRef:  p.ContentRef,
		Owner:       caller,
		Price:       p.Price,
		RentalPrice: p.RentalPrice,
		Active:      true,
		CreatedAt:   now,
	}
	l.items[id] = item
	l.history[id] = []OwnershipRecord{{Owner: caller, Timestamp: now, Price: 0}}
	l.userItems[caller] = append(l.userItems[caller], id)

	ev := ItemCreated{
		ItemID:      id,
		Title:       p.Title,
		ContentRef:  p.ContentRef,
		Owner:       caller,
		Price:       p.Price,
		RentalPrice: p.RentalPrice,
	}
	return id, []Event{ev}, nil
}

// PurchaseItem transfers ownership of an item to the caller. The previous
// owner is paid the item price and any excess payment is refunded. State is
// updated before the payout; if the payout fails the update is rolled back
// and the operation has no effect.
func (l *Ledger) PurchaseItem(caller Address, itemID, payment uint64) ([]Event, error) {
	const op = "ledger.purchaseItem"

	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[itemID]
	if !ok {
		return nil, errorf(KindNotFound, op, "item %d does not exist", itemID)
	}
	if !item.Active {
		return nil, errorf(KindState, op, "item %d is not active", itemID)
	}
	if item.Price == 0 {
		return nil, errorf(KindState, op, "item %d is not for sale", itemID)
	}
	if payment < item.Price {
		return nil, errorf(KindInsufficientPayment, op,
			"payment %d below price %d", payment, item.Price)
	}
	if caller == item.Owner {
		return nil, errorf(KindState, op, "caller already owns item %d", itemID)
	}

	prevOwner := item.Owner
	price := item.Price

	// Effects before interactions: mutate ownership state, then transfer.
	item.Owner = caller
	l.history[itemID] = append(l.history[itemID], OwnershipRecord{
		Owner:     caller,
		Timestamp: l.now().Unix(),
		Price:     price,
	})
	// The previous owner's index entry is intentionally not removed.
	l.userItems[caller] = append(l.userItems[caller], itemID)

	if err := l.bank.Pay(prevOwner, price); err != nil {
		item.Owner = prevOwner
		l.history[itemID] = l.history[itemID][:len(l.history[itemID])-1]
		l.userItems[caller] = l.userItems[caller][:len(l.userItems[caller])-1]
		return nil, err
	}
	if excess := payment - price; excess > 0 {
		if err := l.bank.Refund(caller, excess); err != nil {
			return nil, err
		}
	}

	ev := ItemPurchased{ItemID: itemID, PreviousOwner: prevOwner, NewOwner: caller, Price: price}
	return []Event{ev}, nil
}

type RentItemParams struct {
	ItemID    uint64
	StartTime int64
	EndTime   int64
}

// RentalCost computes the cost of renting for the given span at the given
// per-day rental price. Division truncates: spans that are not an exact
// multiple of a day round their cost down.
func RentalCost(durationSeconds, rentalPrice uint64) uint64 {
	return durationSeconds * rentalPrice / secondsPerDay
}

// RentItem creates a time-boxed access grant on an item and returns the
// rental id. The owner is paid the computed cost; excess payment is
// refunded. Same effects-before-interactions contract as PurchaseItem.
func (l *Ledger) RentItem(caller Address, p RentItemParams, payment uint64) (uint64, []Event, error) {
	const op = "ledger.rentItem"

	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[p.ItemID]
	if !ok {
		return 0, nil, errorf(KindNotFound, op, "item %d does not exist", p.ItemID)
	}
	if !item.Active {
		return 0, nil, errorf(KindState, op, "item %d is not active", p.ItemID)
	}
	if item.RentalPrice == 0 {
		return 0, nil, errorf(KindState, op, "item %d is not for rent", p.ItemID)
	}
	if caller == item.Owner {
		return 0, nil, errorf(KindState, op, "caller already owns item %d", p.ItemID)
	}

	now := l.now().Unix()
	if p.StartTime < now {
		return 0, nil, errorf(KindState, op, "start time %d is in the past", p.StartTime)
	}
	if p.EndTime <= p.StartTime {
		return 0, nil, errorf(KindState, op, "end time must be after start time")
	}
	if p.EndTime > now+maxRentalSpan {
		return 0, nil, errorf(KindState, op, "rental span exceeds one year")
	}

	cost := RentalCost(uint64(p.EndTime-p.StartTime), item.RentalPrice)
	if payment < cost {
		return 0, nil, errorf(KindInsufficientPayment, op,
			"payment %d below rental cost %d", payment, cost)
	}

	id := l.nextRentalID
	l.nextRentalID++

	rental := &Rental{
		ID:         id,
		ItemID:     p.ItemID,
		Renter:     caller,
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		AmountPaid: cost,
		Active:     true,
	}
	l.rentals[id] = rental
	item.TotalRentals++
	item.TotalRevenue += cost
	l.userRentals[caller] = append(l.userRentals[caller], id)

	firstRental := false
	if l.hasRented[p.ItemID] == nil {
		l.hasRented[p.ItemID] = make(map[Address]bool)
	}
	if !l.hasRented[p.ItemID][caller] {
		l.hasRented[p.ItemID][caller] = true
		l.itemRenters[p.ItemID] = append(l.itemRenters[p.ItemID], caller)
		firstRental = true
	}

	if err := l.bank.Pay(item.Owner, cost); err != nil {
		delete(l.rentals, id)
		l.nextRentalID--
		item.TotalRentals--
		item.TotalRevenue -= cost
		l.userRentals[caller] = l.userRentals[caller][:len(l.userRentals[caller])-1]
		if firstRental {
			delete(l.hasRented[p.ItemID], caller)
			l.itemRenters[p.ItemID] = l.itemRenters[p.ItemID][:len(l.itemRenters[p.ItemID])-1]
		}
		return 0, nil, err
	}
	if excess := payment - cost; excess > 0 {
		if err := l.bank.Refund(caller, excess); err != nil {
			return 0, nil, err
		}
	}

	ev := ItemRented{
		RentalID:  id,
		ItemID:    p.ItemID,
		Renter:    caller,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Amount:    cost,
	}
	return id, []Event{ev}, nil
}

// UpdateItemPrices overwrites both prices unconditionally. Owner only.
func (l *Ledger) UpdateItemPrices(caller Address, itemID, newPrice, newRentalPrice uint64) ([]Event, error) {
	const op = "ledger.updateItemPrices"

	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[itemID]
	if !ok {
		return nil, errorf(KindNotFound, op, "item %d does not exist", itemID)
	}
	if caller != item.Owner {
		return nil, errorf(KindAuthorization, op, "caller %s is not the owner of item %d", caller, itemID)
	}
	if newPrice == 0 && newRentalPrice == 0 {
		return nil, errorf(KindValidation, op, "at least one of price or rental price must be positive")
	}

	item.Price = newPrice
	item.RentalPrice = newRentalPrice

	ev := ItemPricesUpdated{ItemID: itemID, Price: newPrice, RentalPrice: newRentalPrice}
	return []Event{ev}, nil
}

// DeactivateItem permanently retires an item. There is no reactivation path;
// calling it on an already inactive item is allowed and leaves it inactive.
func (l *Ledger) DeactivateItem(caller Address, itemID uint64) ([]Event, error) {
	const op = "ledger.deactivateItem"

	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[itemID]
	if !ok {
		return nil, errorf(KindNotFound, op, "item %d does not exist", itemID)
	}
	if caller != item.Owner {
		return nil, errorf(KindAuthorization, op, "caller %s is not the owner of item %d", caller, itemID)
	}

	item.Active = false

	ev := ItemDeactivated{ItemID: itemID}
	return []Event{ev}, nil
}

// GetItem returns a copy of the item.
func (l *Ledger) GetItem(itemID uint64) (Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[itemID]
	if !ok {
		return Item{}, errorf(KindNotFound, "ledger.getItem", "item %d does not exist", itemID)
	}
	return *item, nil
}

// GetRental returns a copy of the rental.
func (l *Ledger) GetRental(rentalID uint64) (Rental, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rental, ok := l.rentals[rentalID]
	if !ok {
		return Rental{}, errorf(KindNotFound, "ledger.getRental", "rental %d does not exist", rentalID)
	}
	return *rental, nil
}

// GetOwnershipHistory returns the append-only ownership log for an item,
// oldest entry first.
func (l *Ledger) GetOwnershipHistory(itemID uint64) ([]OwnershipRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[itemID]; !ok {
		return nil, errorf(KindNotFound, "ledger.getOwnershipHistory", "item %d does not exist", itemID)
	}
	records := l.history[itemID]
	out := make([]OwnershipRecord, len(records))
	copy(out, records)
	return out, nil
}

// GetItemRenters returns every account that has ever rented the item, each
// listed once in first-rental order.
func (l *Ledger) GetItemRenters(itemID uint64) ([]Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[itemID]; !ok {
		return nil, errorf(KindNotFound, "ledger.getItemRenters", "item %d does not exist", itemID)
	}
	renters := l.itemRenters[itemID]
	out := make([]Address, len(renters))
	copy(out, renters)
	return out, nil
}

// GetUserItems returns the item index for an account. Entries are never
// removed on sale, so the index lists every item the account has ever owned.
func (l *Ledger) GetUserItems(account Address) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.userItems[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// GetUserRentals returns the rental ids created by an account.
func (l *Ledger) GetUserRentals(account Address) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.userRentals[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

func (l *Ledger) GetTotalItems() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextItemID - firstItemID
}

func (l *Ledger) GetTotalRentals() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextRentalID - firstRentalID
}

// HasActiveRental reports whether the account holds a rental on the item
// whose stored window contains the current time. The stored Active flag is
// not consulted; the time window is authoritative.
func (l *Ledger) HasActiveRental(itemID uint64, account Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().Unix()
	for _, id := range l.userRentals[account] {
		r := l.rentals[id]
		if r.ItemID == itemID && r.StartTime <= now && now <= r.EndTime {
			return true
		}
	}
	return false
}

// GetActiveItems scans the identifier window (offset+1 .. offset+limit,
// capped at the total) and returns the active items inside it. Inactive
// items are skipped without widening the window, so the result may be
// shorter than limit.
func (l *Ledger) GetActiveItems(offset, limit uint64) ([]Item, error) {
	const op = "ledger.getActiveItems"

	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.nextItemID - firstItemID
	if offset >= total {
		return nil, errorf(KindValidation, op, "offset %d is beyond total items %d", offset, total)
	}
	if limit == 0 {
		return nil, errorf(KindValidation, op, "limit must be positive")
	}

	end := offset + limit
	if end > total {
		end = total
	}

	var out []Item
	for id := offset + 1; id <= end; id++ {
		item := l.items[id]
		if item.Active {
			out = append(out, *item)
		}
	}
	return out, nil
}
