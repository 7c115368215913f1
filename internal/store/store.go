// Package store holds the layer descriptor store: the single source of truth
// for what should be rendered on the map surface. Mutations go through
// defined actions and reads are synchronous snapshots; every mutation
// notifies subscribers so the reconciler can re-run its diff.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/oceanportal/workbench/internal/core/model"
)

// ErrNotFound reports an operation against a layer id that is not on the
// workbench.
var ErrNotFound = errors.New("layer not on the workbench")

// Overlays are the three boolean-gated static overlay layers.
type Overlays struct {
	EEZ        bool `json:"eez"`
	Coastline  bool `json:"coastline"`
	PlaceNames bool `json:"placenames"`
}

// Snapshot is the persistable workbench state: descriptors plus the last
// coordinate selections. It round-trips through the prefs store.
type Snapshot struct {
	Layers      []model.LayerDescriptor             `json:"layers"`
	Coordinates map[string]model.CoordinateSelection `json:"coordinates"`
}

type Store struct {
	mu         sync.RWMutex
	layers     []model.LayerDescriptor
	selections map[string]model.CoordinateSelection
	viewport   model.Viewport
	basemap    model.BaseMap
	overlays   Overlays
	subs       []chan struct{}
}

func New() *Store {
	return &Store{
		selections: map[string]model.CoordinateSelection{},
		overlays:   Overlays{EEZ: true, Coastline: true, PlaceNames: true},
	}
}

// Subscribe returns a channel that receives a coalesced signal after every
// mutation. The channel is buffered; a slow consumer sees at least one
// signal for any burst of changes.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Add appends a descriptor. The id must be unique within the active set.
func (s *Store) Add(d model.LayerDescriptor) error {
	if d.Kind == "" {
		d.Kind = model.KindOf(d.RawType, d.EnableCOG)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if l.ID == d.ID {
			return fmt.Errorf("layer %s already on the workbench", d.ID)
		}
	}
	s.layers = append(s.layers, d)
	s.notifyLocked()
	return nil
}

// Update replaces the descriptor with the same id, keeping its position.
func (s *Store) Update(d model.LayerDescriptor) error {
	if d.Kind == "" {
		d.Kind = model.KindOf(d.RawType, d.EnableCOG)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l.ID == d.ID {
			s.layers[i] = d
			s.notifyLocked()
			return nil
		}
	}
	return fmt.Errorf("layer %s: %w", d.ID, ErrNotFound)
}

func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l.ID == id {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			s.notifyLocked()
			return true
		}
	}
	return false
}

// SetEnabled soft-disables a descriptor without removing it.
func (s *Store) SetEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l.ID == id {
			if s.layers[i].Enabled != enabled {
				s.layers[i].Enabled = enabled
				s.notifyLocked()
			}
			return true
		}
	}
	return false
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.layers) == 0 {
		return
	}
	s.layers = nil
	s.notifyLocked()
}

// Layers returns an ordered copy of the active descriptor set.
func (s *Store) Layers() []model.LayerDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LayerDescriptor, len(s.layers))
	copy(out, s.layers)
	return out
}

func (s *Store) Get(id string) (model.LayerDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.layers {
		if l.ID == id {
			return l, true
		}
	}
	return model.LayerDescriptor{}, false
}

// Restore replaces the descriptor set from a saved snapshot. Restored
// layers never auto-refit the viewport, so zoomToLayer is forced off.
func (s *Store) Restore(snap Snapshot) error {
	for i := range snap.Layers {
		if snap.Layers[i].Kind == "" {
			snap.Layers[i].Kind = model.KindOf(snap.Layers[i].RawType, snap.Layers[i].EnableCOG)
		}
		snap.Layers[i].ZoomToLayer = false
		if err := snap.Layers[i].Validate(); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
	}
	seen := map[string]struct{}{}
	for _, l := range snap.Layers {
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("restore snapshot: duplicate layer id %s", l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append([]model.LayerDescriptor(nil), snap.Layers...)
	if snap.Coordinates != nil {
		s.selections = map[string]model.CoordinateSelection{}
		for id, sel := range snap.Coordinates {
			s.selections[id] = sel
		}
	}
	s.notifyLocked()
	return nil
}

// SnapshotState captures the current workbench for persistence.
func (s *Store) SnapshotState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Layers:      make([]model.LayerDescriptor, len(s.layers)),
		Coordinates: make(map[string]model.CoordinateSelection, len(s.selections)),
	}
	copy(snap.Layers, s.layers)
	for id, sel := range s.selections {
		snap.Coordinates[id] = sel
	}
	return snap
}

// SetSelection records a coordinate selection, overwriting any previous
// selection for the same descriptor id.
func (s *Store) SetSelection(sel model.CoordinateSelection) {
	if sel.LayerID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[sel.LayerID] = sel
	s.notifyLocked()
}

func (s *Store) Selection(id string) (model.CoordinateSelection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sel, ok := s.selections[id]
	return sel, ok
}

func (s *Store) SetViewport(v model.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = v
	s.notifyLocked()
}

// SetBounds records a programmatic bounds request (e.g. region selector).
func (s *Store) SetBounds(b model.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport.Bounds = &b
	s.notifyLocked()
}

func (s *Store) Viewport() model.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

func (s *Store) SetBaseMap(b model.BaseMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basemap = b
	s.notifyLocked()
}

func (s *Store) BaseMap() model.BaseMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basemap
}

func (s *Store) SetOverlays(o Overlays) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlays == o {
		return
	}
	s.overlays = o
	s.notifyLocked()
}

func (s *Store) Overlays() Overlays {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlays
}
