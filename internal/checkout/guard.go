package checkout

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
)

// Guard is the per-cart re-entrancy gate for the initialization saga. A cart
// moves Idle -> Running -> Done or Error; a second begin while Running is
// rejected, and a terminal Error leaves the cart re-runnable.
type Guard struct {
	mu     sync.Mutex
	states map[uuid.UUID]enums.CheckoutState
}

func NewGuard() *Guard {
	return &Guard{states: map[uuid.UUID]enums.CheckoutState{}}
}

// TryBegin claims the cart for one initialization run.
func (g *Guard) TryBegin(cartID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.states[cartID] {
	case enums.CheckoutStateRunning:
		return pkgerrors.New(pkgerrors.CodeConflict, "checkout initialization already in progress")
	case enums.CheckoutStateDone:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already initialized")
	default:
		g.states[cartID] = enums.CheckoutStateRunning
		return nil
	}
}

// Finish records the run's outcome. A failed run resets to Error so the buyer
// can retry.
func (g *Guard) Finish(cartID uuid.UUID, succeeded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if succeeded {
		g.states[cartID] = enums.CheckoutStateDone
		return
	}
	g.states[cartID] = enums.CheckoutStateError
}

// Reset returns the cart to Idle, used when a session is discarded so a fresh
// initialization may run.
func (g *Guard) Reset(cartID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, cartID)
}

// State reports the cart's current saga state.
func (g *Guard) State(cartID uuid.UUID) enums.CheckoutState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state, ok := g.states[cartID]; ok {
		return state
	}
	return enums.CheckoutStateIdle
}
