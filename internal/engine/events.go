package engine

import (
	"sort"

	"github.com/rickgao/prediction-backtest/internal/model"
)

// Merge ranks for events sharing a timestamp.
const (
	rankOpen = iota
	rankTrade
	rankClose
	rankResolve
)

// lifecycleKind tags a derived market lifecycle event.
type lifecycleKind int

const (
	lifecycleOpen lifecycleKind = iota
	lifecycleClose
	lifecycleResolve
)

func (k lifecycleKind) rank() int {
	switch k {
	case lifecycleOpen:
		return rankOpen
	case lifecycleClose:
		return rankClose
	default:
		return rankResolve
	}
}

// lifecycleEvent is a derived open, close, or resolve event.
type lifecycleEvent struct {
	ts       int64
	kind     lifecycleKind
	marketID string
	outcome  model.Resolution
	seq      int // Feed order, preserved within a class at equal timestamps
}

// deriveLifecycle builds the sorted lifecycle schedule from market
// metadata. Resolutions without an explicit timestamp settle at close.
func deriveLifecycle(markets []model.Market) []lifecycleEvent {
	var events []lifecycleEvent
	for i, m := range markets {
		events = append(events, lifecycleEvent{
			ts:       m.OpenTS,
			kind:     lifecycleOpen,
			marketID: m.ID,
			seq:      i,
		})
		events = append(events, lifecycleEvent{
			ts:       m.CloseTS,
			kind:     lifecycleClose,
			marketID: m.ID,
			seq:      i,
		})
		if m.Resolution != model.Unresolved {
			resolveTS := m.ResolveTS
			if resolveTS == 0 {
				resolveTS = m.CloseTS
			}
			events = append(events, lifecycleEvent{
				ts:       resolveTS,
				kind:     lifecycleResolve,
				marketID: m.ID,
				outcome:  m.Resolution,
				seq:      i,
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ts != events[j].ts {
			return events[i].ts < events[j].ts
		}
		if events[i].kind.rank() != events[j].kind.rank() {
			return events[i].kind.rank() < events[j].kind.rank()
		}
		return events[i].seq < events[j].seq
	})
	return events
}
