package inventory

import (
	"sort"

	"github.com/google/uuid"
)

// ReplayStep is the recomputed outcome of one move
type ReplayStep struct {
	Move    *StockMove
	Applied AppliedCost
	// Changed is true when the recomputed cost differs from the stored one
	Changed bool
}

// ReplayResult is the outcome of replaying a full move sequence
type ReplayResult struct {
	State *StockState
	Steps []ReplayStep
}

// Step returns the step of move id
func (r *ReplayResult) Step(id uuid.UUID) (ReplayStep, bool) {
	for _, s := range r.Steps {
		if s.Move.ID == id {
			return s, true
		}
	}
	return ReplayStep{}, false
}

// ChangedSteps returns the steps whose recomputed cost differs from storage
func (r *ReplayResult) ChangedSteps() []ReplayStep {
	var out []ReplayStep
	for _, s := range r.Steps {
		if s.Changed {
			out = append(out, s)
		}
	}
	return out
}

// SortMoves orders moves by (MoveDate, Seq) in place
func SortMoves(moves []*StockMove) {
	sort.SliceStable(moves, func(i, j int) bool {
		if !moves[i].MoveDate.Equal(moves[j].MoveDate) {
			return moves[i].MoveDate.Before(moves[j].MoveDate)
		}
		return moves[i].Seq < moves[j].Seq
	})
}

// Replay recomputes the running state of key from scratch. Moves are
// interpreted in (MoveDate, Seq) order whatever order they are passed in,
// and are not modified.
func Replay(key StockKey, moves []*StockMove) (*ReplayResult, error) {
	ordered := make([]*StockMove, len(moves))
	copy(ordered, moves)
	SortMoves(ordered)

	state := NewStockState(key)
	steps := make([]ReplayStep, 0, len(ordered))
	for _, m := range ordered {
		applied, err := state.Apply(m)
		if err != nil {
			return nil, err
		}
		steps = append(steps, ReplayStep{
			Move:    m,
			Applied: applied,
			Changed: !applied.UnitCost.Equal(m.UnitCostApplied) || !applied.TotalCost.Equal(m.TotalCostApplied),
		})
	}
	return &ReplayResult{State: state, Steps: steps}, nil
}
