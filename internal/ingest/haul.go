package ingest

import (
	"sort"

	"github.com/google/uuid"

	"wastewise-service/internal/entity"
)

// PrepareHaulEvents sorts events chronologically and derives the
// days-since-previous field per project. The earliest event of each project
// keeps a nil value. The input slice is not modified.
func PrepareHaulEvents(events []entity.HaulEvent) []entity.HaulEvent {
	out := make([]entity.HaulEvent, len(events))
	copy(out, events)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredOn.Before(out[j].OccurredOn)
	})

	previous := make(map[uuid.UUID]int) // project -> index of its latest event seen
	for i := range out {
		out[i].DaysSincePrevious = nil
		if prev, ok := previous[out[i].ProjectID]; ok {
			days := int(out[i].OccurredOn.Sub(out[prev].OccurredOn).Hours() / 24)
			out[i].DaysSincePrevious = &days
		}
		previous[out[i].ProjectID] = i
	}

	return out
}
