package market

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Ledger holds pull-payment balances owed to parties by the engine: outbid
// refunds and seller proceeds that could not be pushed. It is not safe for
// concurrent use; the Engine serializes access.
type Ledger struct {
	pending map[domain.Address]domain.Amount
}

func newLedger(initial map[domain.Address]domain.Amount) *Ledger {
	l := &Ledger{pending: make(map[domain.Address]domain.Amount, len(initial))}
	for addr, amt := range initial {
		if amt > 0 {
			l.pending[addr] = amt
		}
	}
	return l
}

// Balance returns the amount owed to addr.
func (l *Ledger) Balance(addr domain.Address) domain.Amount {
	return l.pending[addr]
}

// afterCredit returns addr's balance once amount is credited. It never
// fails for non-negative amounts; the sum saturates rather than wraps.
func (l *Ledger) afterCredit(addr domain.Address, amount domain.Amount) domain.Amount {
	cur := l.pending[addr]
	if amount <= 0 {
		return cur
	}
	sum := cur + amount
	if sum < cur {
		return domain.Amount(1<<63 - 1)
	}
	return sum
}

// withdrawable returns addr's full balance or ErrNothingToWithdraw.
func (l *Ledger) withdrawable(addr domain.Address) (domain.Amount, error) {
	amt := l.pending[addr]
	if amt <= 0 {
		return 0, fmt.Errorf("market: withdraw %s: %w", addr.Hex(), domain.ErrNothingToWithdraw)
	}
	return amt, nil
}

func (l *Ledger) set(addr domain.Address, amount domain.Amount) {
	if amount <= 0 {
		delete(l.pending, addr)
		return
	}
	l.pending[addr] = amount
}

// Total returns the sum of every pending balance, saturating like
// afterCredit.
func (l *Ledger) Total() domain.Amount {
	var total domain.Amount
	for _, amt := range l.pending {
		if total > math.MaxInt64-amt {
			return math.MaxInt64
		}
		total += amt
	}
	return total
}
