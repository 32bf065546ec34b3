package patch

import "github.com/mouton0815/aggregate-event-duality/internal/model"

// LocationPatch is the sparse change set of one location aggregate row.
// Counters can grow, shrink or stay; they are never removed individually,
// only the whole city entry disappears (as null in a LocationEvent).
type LocationPatch struct {
	Total   *uint64 `json:"total,omitempty"`
	Married *uint64 `json:"married,omitempty"`
}

// LocationEvent is the body of one location outbox row. A city mapping
// to null means the last person left and the row was dropped.
type LocationEvent map[string]*LocationPatch

// DiffLocation compares the stored row of a city (nil if the city had no
// row) against freshly computed post-mutation counts. It returns the
// event entry for that city and whether an entry belongs in the event at
// all. A vanished city yields (nil, true), i.e. an explicit null.
func DiffLocation(before *model.Location, total, married uint64) (*LocationPatch, bool) {
	if total == 0 {
		if before == nil {
			return nil, false
		}
		return nil, true
	}
	if before == nil {
		return &LocationPatch{Total: &total, Married: &married}, true
	}
	var lp LocationPatch
	if before.Total != total {
		lp.Total = &total
	}
	if before.Married != married {
		lp.Married = &married
	}
	if lp.Total == nil && lp.Married == nil {
		return nil, false
	}
	return &lp, true
}
