package ledger

import (
	"sync"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// Reserved overlays approved-but-unfilled order size on a Ledger, so risk
// validation sees each position as it will be once in-flight orders land.
// The engine reserves when a signal is approved and releases when the order
// fills, fails, or is cancelled; the window in between is what would
// otherwise let a second signal validate against a stale position.
type Reserved struct {
	book *Ledger

	mu      sync.Mutex
	pending map[string][]reservation // symbol -> reservations in approval order
}

type reservation struct {
	id   string
	fill domain.Fill
}

// NewReserved creates an overlay over book with no reservations.
func NewReserved(book *Ledger) *Reserved {
	return &Reserved{
		book:    book,
		pending: make(map[string][]reservation),
	}
}

// Get returns the position for symbol with every in-flight reservation
// previewed on top of the booked position, in approval order.
func (r *Reserved) Get(symbol string) domain.Position {
	pos := r.book.Get(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.pending[symbol] {
		pos = r.book.Preview(pos, res.fill)
	}
	return pos
}

// Reserve records the expected fill of an approved order until it lands or
// fails. Reserving the same id twice replaces the earlier reservation.
func (r *Reserved) Reserve(id string, fill domain.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.pending[fill.Symbol]
	for i, res := range list {
		if res.id == id {
			list[i].fill = fill
			return
		}
	}
	r.pending[fill.Symbol] = append(list, reservation{id: id, fill: fill})
}

// Release drops the reservation for id on symbol. Releasing an id that was
// never reserved, or was already released, is a no-op.
func (r *Reserved) Release(symbol, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.pending[symbol]
	for i, res := range list {
		if res.id == id {
			r.pending[symbol] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.pending[symbol]) == 0 {
		delete(r.pending, symbol)
	}
}
