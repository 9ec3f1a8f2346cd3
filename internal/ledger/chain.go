// internal/ledger/chain.go
package ledger

import (
	"context"
	"sync"
)

// Gas cost table for state-changing operations. Costs are fixed per
// operation; EstimateGas returns them for pre-flight checks and receipts
// report them as consumed.
const (
	OpCreateItem       = "createItem"
	OpPurchaseItem     = "purchaseItem"
	OpRentItem         = "rentItem"
	OpUpdateItemPrices = "updateItemPrices"
	OpDeactivateItem   = "deactivateItem"
)

var gasCosts = map[string]uint64{
	OpCreateItem:       90000,
	OpPurchaseItem:     65000,
	OpRentItem:         75000,
	OpUpdateItemPrices: 30000,
	OpDeactivateItem:   25000,
}

// Receipt is the durable outcome of a submitted transaction.
type Receipt struct {
	Seq     uint64
	Op      string
	GasUsed uint64
	Result  uint64 // created item or rental id, when the op allocates one
	Events  []Event
	Err     error
}

// PendingTx is a submitted, not yet confirmed transaction. A submitted
// transaction cannot be withdrawn; Wait only abandons the caller's wait.
type PendingTx struct {
	done chan *Receipt
}

// Wait blocks until the host confirms the transaction's side effects are
// durable, or the context ends.
func (p *PendingTx) Wait(ctx context.Context) (*Receipt, error) {
	select {
	case r := <-p.done:
		return r, nil
	case <-ctx.Done():
		return nil, errorf(KindTransport, "chain.wait", "confirmation wait aborted: %v", ctx.Err())
	}
}

type submission struct {
	caller   Address
	payment  uint64
	op       string
	gasLimit uint64
	exec     func(*Ledger) (uint64, []Event, error)
	done     chan *Receipt
}

// Chain is the execution host for the ledger. A single worker goroutine
// applies submitted transactions in arrival order, giving the total ordering
// and atomicity the ledger relies on. Reads are pure and bypass the queue.
type Chain struct {
	ledger *Ledger

	mu     sync.Mutex
	closed bool
	subs   chan *submission
	quit   chan struct{}
	wg     sync.WaitGroup
}

func NewChain(l *Ledger) *Chain {
	c := &Chain{
		ledger: l,
		subs:   make(chan *submission, 64),
		quit:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Chain) run() {
	defer c.wg.Done()
	var seq uint64
	for {
		select {
		case sub := <-c.subs:
			seq++
			sub.done <- c.apply(seq, sub)
		case <-c.quit:
			// Drain anything already queued so no submitter blocks forever.
			for {
				select {
				case sub := <-c.subs:
					seq++
					sub.done <- c.apply(seq, sub)
				default:
					return
				}
			}
		}
	}
}

func (c *Chain) apply(seq uint64, sub *submission) *Receipt {
	receipt := &Receipt{Seq: seq, Op: sub.op, GasUsed: gasCosts[sub.op]}

	if sub.gasLimit < gasCosts[sub.op] {
		receipt.Err = errorf(KindValidation, "chain.apply",
			"gas limit %d below required %d for %s", sub.gasLimit, gasCosts[sub.op], sub.op)
		return receipt
	}

	// The payment travels with the transaction: escrow it before executing,
	// hand it back in full if the operation aborts.
	if sub.payment > 0 {
		if err := c.ledger.bank.Escrow(sub.caller, sub.payment); err != nil {
			receipt.Err = err
			return receipt
		}
	}

	result, events, err := sub.exec(c.ledger)
	if err != nil {
		if sub.payment > 0 {
			c.ledger.bank.Refund(sub.caller, sub.payment)
		}
		receipt.Err = err
		return receipt
	}

	receipt.Result = result
	receipt.Events = events
	return receipt
}

// EstimateGas returns the gas a state-changing operation will consume.
func (c *Chain) EstimateGas(op string) (uint64, error) {
	cost, ok := gasCosts[op]
	if !ok {
		return 0, errorf(KindValidation, "chain.estimateGas", "unknown operation %q", op)
	}
	return cost, nil
}

func (c *Chain) submit(sub *submission) (*PendingTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errorf(KindTransport, "chain.submit", "chain is not reachable")
	}
	sub.done = make(chan *Receipt, 1)
	c.subs <- sub
	return &PendingTx{done: sub.done}, nil
}

func (c *Chain) SubmitCreateItem(caller Address, gasLimit uint64, p CreateItemParams) (*PendingTx, error) {
	return c.submit(&submission{
		caller:   caller,
		op:       OpCreateItem,
		gasLimit: gasLimit,
		exec: func(l *Ledger) (uint64, []Event, error) {
			return l.CreateItem(caller, p)
		},
	})
}

func (c *Chain) SubmitPurchaseItem(caller Address, gasLimit, itemID, payment uint64) (*PendingTx, error) {
	return c.submit(&submission{
		caller:   caller,
		payment:  payment,
		op:       OpPurchaseItem,
		gasLimit: gasLimit,
		exec: func(l *Ledger) (uint64, []Event, error) {
			events, err := l.PurchaseItem(caller, itemID, payment)
			return 0, events, err
		},
	})
}

func (c *Chain) SubmitRentItem(caller Address, gasLimit uint64, p RentItemParams, payment uint64) (*PendingTx, error) {
	return c.submit(&submission{
		caller:   caller,
		payment:  payment,
		op:       OpRentItem,
		gasLimit: gasLimit,
		exec: func(l *Ledger) (uint64, []Event, error) {
			return l.RentItem(caller, p, payment)
		},
	})
}

func (c *Chain) SubmitUpdateItemPrices(caller Address, gasLimit, itemID, newPrice, newRentalPrice uint64) (*PendingTx, error) {
	return c.submit(&submission{
		caller:   caller,
		op:       OpUpdateItemPrices,
		gasLimit: gasLimit,
		exec: func(l *Ledger) (uint64, []Event, error) {
			events, err := l.UpdateItemPrices(caller, itemID, newPrice, newRentalPrice)
			return 0, events, err
		},
	})
}

func (c *Chain) SubmitDeactivateItem(caller Address, gasLimit, itemID uint64) (*PendingTx, error) {
	return c.submit(&submission{
		caller:   caller,
		op:       OpDeactivateItem,
		gasLimit: gasLimit,
		exec: func(l *Ledger) (uint64, []Event, error) {
			events, err := l.DeactivateItem(caller, itemID)
			return 0, events, err
		},
	})
}

// Close stops accepting submissions and waits for queued transactions to
// finish. Reads fail with a transport error afterwards.
func (c *Chain) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.quit)
	c.wg.Wait()
}

func (c *Chain) reachable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errorf(KindTransport, "chain.read", "chain is not reachable")
	}
	return nil
}

// Read accessors. These are pure pass-throughs to the ledger; they fail only
// when the chain itself is unreachable.

func (c *Chain) GetItem(itemID uint64) (Item, error) {
	if err := c.reachable(); err != nil {
		return Item{}, err
	}
	return c.ledger.GetItem(itemID)
}

func (c *Chain) GetRental(rentalID uint64) (Rental, error) {
	if err := c.reachable(); err != nil {
		return Rental{}, err
	}
	return c.ledger.GetRental(rentalID)
}

func (c *Chain) GetOwnershipHistory(itemID uint64) ([]OwnershipRecord, error) {
	if err := c.reachable(); err != nil {
		return nil, err
	}
	return c.ledger.GetOwnershipHistory(itemID)
}

func (c *Chain) GetItemRenters(itemID uint64) ([]Address, error) {
	if err := c.reachable(); err != nil {
		return nil, err
	}
	return c.ledger.GetItemRenters(itemID)
}

func (c *Chain) GetUserItems(account Address) ([]uint64, error) {
	if err := c.reachable(); err != nil {
		return nil, err
	}
	return c.ledger.GetUserItems(account), nil
}

func (c *Chain) GetUserRentals(account Address) ([]uint64, error) {
	if err := c.reachable(); err != nil {
		return nil, err
	}
	return c.ledger.GetUserRentals(account), nil
}

func (c *Chain) GetTotalItems() (uint64, error) {
	if err := c.reachable(); err != nil {
		return 0, err
	}
	return c.ledger.GetTotalItems(), nil
}

func (c *Chain) GetTotalRentals() (uint64, error) {
	if err := c.reachable(); err != nil {
		return 0, err
	}
	return c.ledger.GetTotalRentals(), nil
}

func (c *Chain) HasActiveRental(itemID uint64, account Address) (bool, error) {
	if err := c.reachable(); err != nil {
		return false, err
	}
	return c.ledger.HasActiveRental(itemID, account), nil
}

func (c *Chain) GetActiveItems(offset, limit uint64) ([]Item, error) {
	if err := c.reachable(); err != nil {
		return nil, err
	}
	return c.ledger.GetActiveItems(offset, limit)
}

func (c *Chain) Balance(account Address) (uint64, error) {
	if err := c.reachable(); err != nil {
		return 0, err
	}
	return c.ledger.bank.Balance(account), nil
}
