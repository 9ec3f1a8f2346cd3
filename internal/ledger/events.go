// internal/ledger/events.go
package ledger

// Event is a record emitted by a successful state-changing operation and
// attached to the transaction receipt.
type Event interface {
	EventType() string
}

type ItemCreated struct {
	ItemID      uint64  `json:"item_id"`
	Title       string  `json:"title"`
	ContentRef  string  `json:"content_ref"`
	Owner       Address `json:"owner"`
	Price       uint64  `json:"price"`
	RentalPrice uint64  `json:"rental_price"`
}

func (ItemCreated) EventType() string { return "ItemCreated" }

type ItemPurchased struct {
	ItemID        uint64  `json:"item_id"`
	PreviousOwner Address `json:"previous_owner"`
	NewOwner      Address `json:"new_owner"`
	Price         uint64  `json:"price"`
}

func (ItemPurchased) EventType() string { return "ItemPurchased" }

type ItemRented struct {
	RentalID  uint64  `json:"rental_id"`
	ItemID    uint64  `json:"item_id"`
	Renter    Address `json:"renter"`
	StartTime int64   `json:"start_time"`
	EndTime   int64   `json:"end_time"`
	Amount    uint64  `json:"amount"`
}

func (ItemRented) EventType() string { return "ItemRented" }

type ItemPricesUpdated struct {
	ItemID      uint64 `json:"item_id"`
	Price       uint64 `json:"price"`
	RentalPrice uint64 `json:"rental_price"`
}

func (ItemPricesUpdated) EventType() string { return "ItemPricesUpdated" }

type ItemDeactivated struct {
	ItemID uint64 `json:"item_id"`
}

func (ItemDeactivated) EventType() string { return "ItemDeactivated" }
