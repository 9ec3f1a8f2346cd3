// internal/ledger/bank.go
package ledger

import "sync"

// Bank settles value transfers for the ledger. Amounts are integer minor
// units. Escrow debits the caller before an operation executes (the wire
// payment amount travels with the transaction); Pay and Refund move escrowed
// funds out to accounts.
type Bank interface {
	Escrow(from Address, amount uint64) error
	Pay(to Address, amount uint64) error
	Refund(to Address, amount uint64) error
	Balance(account Address) uint64
}

// Book is the in-memory Bank used in production and tests. Deposits are
// credited by the payment on-ramp.
type Book struct {
	mu       sync.Mutex
	balances map[Address]uint64
	escrowed uint64
}

func NewBook() *Book {
	return &Book{balances: make(map[Address]uint64)}
}

func (b *Book) Deposit(account Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

func (b *Book) Escrow(from Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[from] < amount {
		return errorf(KindInsufficientPayment, "bank.escrow",
			"account %s balance %d below payment %d", from, b.balances[from], amount)
	}
	b.balances[from] -= amount
	b.escrowed += amount
	return nil
}

func (b *Book) Pay(to Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.escrowed < amount {
		return errorf(KindState, "bank.pay", "escrow underflow paying %d to %s", amount, to)
	}
	b.escrowed -= amount
	b.balances[to] += amount
	return nil
}

func (b *Book) Refund(to Address, amount uint64) error {
	return b.Pay(to, amount)
}

func (b *Book) Balance(account Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}
