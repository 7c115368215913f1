package feedcache

import (
	"fmt"
	"strings"
	"time"

	"github.com/oceanportal/workbench/internal/core/model"
)

// Event is one upstream data-change notification. A bounded event evicts
// only the feeds intersecting the box; an unbounded one evicts the whole
// layer.
type Event struct {
	Version int           `json:"version"`
	LayerID string        `json:"layer_id"`
	TS      time.Time     `json:"ts"`
	Bounds  *model.Bounds `json:"bounds,omitempty"`
	Source  string        `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if strings.TrimSpace(e.LayerID) == "" {
		return fmt.Errorf("layer_id is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Bounds != nil {
		b := *e.Bounds
		if b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
			return fmt.Errorf("bounds longitude out of range")
		}
		if b.South < -90 || b.South > 90 || b.North < -90 || b.North > 90 {
			return fmt.Errorf("bounds latitude out of range")
		}
		if b.North <= b.South {
			return fmt.Errorf("bounds must satisfy north>south")
		}
	}
	return nil
}

// dedupeKey identifies an event for replay suppression. Rebalances and
// broker retries can redeliver; the same layer and timestamp never needs
// processing twice.
func (e Event) dedupeKey() string {
	return e.LayerID + "@" + e.TS.UTC().Format(time.RFC3339Nano)
}
