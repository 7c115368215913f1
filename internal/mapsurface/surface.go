// Package mapsurface models the live map rendering surface as an explicitly
// owned session object. The reconciler and adapters drive it through a small
// capability surface (attach/remove renderers, fit bounds, events) and never
// reach into toolkit internals; tests inspect it directly.
package mapsurface

import (
	"fmt"
	"sync"

	"github.com/oceanportal/workbench/internal/core/model"
)

// Renderer is one visual object attached to the surface. Every renderer
// created for a descriptor carries that descriptor's id in LayerID, which is
// what makes bulk removal by id well-defined and idempotent.
type Renderer struct {
	Key       int
	LayerID   string
	IsBaseMap bool
	OverlayID string
	ZIndex    int
	Kind      string
	LayerName string
	URL       string
	Params    map[string]string
	Markers   []Marker

	// OnTileError receives the url of a tile that failed to load, for
	// renderers that recover broken tiles.
	OnTileError func(tileURL string) `json:"-"`

	// Teardown is called on removal; used for best-effort cancellation of
	// retry timers and in-flight work.
	Teardown func() `json:"-"`
}

// Marker is a rendered point feature (possibly a cluster).
type Marker struct {
	Lat         float64
	Lng         float64
	Count       int
	Station     string
	DisplayName string
	Owner       string
	Active      bool
	TypeID      int
	DataLimit   int
	Tooltip     string
}

// ClickEvent carries the click geometry the feature-info query needs.
type ClickEvent struct {
	LatLng model.LatLng
	X      int
	Y      int
	SizeX  int
	SizeY  int
	BBox   string
}

type Session struct {
	mu      sync.Mutex
	nextKey int
	order   []int
	byKey   map[int]*Renderer

	viewport model.Viewport
	width    int
	height   int

	loaded    bool
	animating bool
	visible   bool

	clickSubs map[int]func(ClickEvent)
	moveSubs  map[int]func(model.Viewport)
	nextSub   int
}

func NewSession(width, height int, initial model.Viewport) *Session {
	return &Session{
		byKey:     map[int]*Renderer{},
		viewport:  initial,
		width:     width,
		height:    height,
		visible:   true,
		clickSubs: map[int]func(ClickEvent){},
		moveSubs:  map[int]func(model.Viewport){},
	}
}

// FinishLoad marks the initial load complete; mutating operations are
// queued by the viewport scheduler until this has happened.
func (s *Session) FinishLoad() {
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
}

func (s *Session) SetAnimating(v bool) {
	s.mu.Lock()
	s.animating = v
	s.mu.Unlock()
}

func (s *Session) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

func (s *Session) SetSize(w, h int) {
	s.mu.Lock()
	s.width, s.height = w, h
	s.mu.Unlock()
}

// Ready reports whether the surface can be mutated right now: loaded, not
// mid-animation, attached to a visible non-zero-size container.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded && !s.animating && s.visible && s.width > 0 && s.height > 0
}

// Attach adds a renderer and returns its surface key.
func (s *Session) Attach(r Renderer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKey++
	r.Key = s.nextKey
	s.byKey[r.Key] = &r
	s.order = append(s.order, r.Key)
	return r.Key
}

func (s *Session) Remove(key int) bool {
	s.mu.Lock()
	r, ok := s.byKey[key]
	if ok {
		delete(s.byKey, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if ok && r.Teardown != nil {
		r.Teardown()
	}
	return ok
}

// RemoveByLayerID removes every renderer tagged with the descriptor id.
func (s *Session) RemoveByLayerID(id string) int {
	return s.RemoveWhere(func(r *Renderer) bool { return r.LayerID == id })
}

// RemoveWhere removes all renderers matching pred and returns the count.
func (s *Session) RemoveWhere(pred func(*Renderer) bool) int {
	s.mu.Lock()
	var victims []*Renderer
	kept := s.order[:0]
	for _, k := range s.order {
		r := s.byKey[k]
		if pred(r) {
			victims = append(victims, r)
			delete(s.byKey, k)
		} else {
			kept = append(kept, k)
		}
	}
	s.order = kept
	s.mu.Unlock()
	for _, r := range victims {
		if r.Teardown != nil {
			r.Teardown()
		}
	}
	return len(victims)
}

// Renderers returns all attached renderers in attach order.
func (s *Session) Renderers() []Renderer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Renderer, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.byKey[k])
	}
	return out
}

func (s *Session) RenderersByLayerID(id string) []Renderer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Renderer
	for _, k := range s.order {
		if r := s.byKey[k]; r.LayerID == id {
			out = append(out, *r)
		}
	}
	return out
}

// VisibleRasters returns attached raster renderers in attach order; the
// last element is the topmost.
func (s *Session) VisibleRasters() []Renderer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Renderer
	for _, k := range s.order {
		r := s.byKey[k]
		if r.Kind == "wms" || r.Kind == "cog" {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *Session) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Session) Viewport() model.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// SetView moves the camera and fires moveend, mirroring user pan/zoom.
func (s *Session) SetView(center model.LatLng, zoom float64) {
	s.mu.Lock()
	s.viewport.Center = center
	s.viewport.Zoom = zoom
	b := s.boundsLocked()
	s.viewport.Bounds = &b
	v := s.viewport
	subs := s.moveSubsLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// FitBounds fits the camera to the given bounds and fires moveend.
func (s *Session) FitBounds(b model.Bounds) {
	s.mu.Lock()
	s.viewport.Center = model.LatLng{
		Lat: (b.South + b.North) / 2,
		Lng: (b.West + b.East) / 2,
	}
	s.viewport.Zoom = zoomForBounds(b, s.width, s.height)
	s.viewport.Bounds = &b
	v := s.viewport
	subs := s.moveSubsLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Bounds returns the current visible extent derived from center/zoom/size.
func (s *Session) Bounds() model.Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundsLocked()
}

func (s *Session) boundsLocked() model.Bounds {
	if s.viewport.Bounds != nil {
		return *s.viewport.Bounds
	}
	return boundsAround(s.viewport.Center, s.viewport.Zoom, s.width, s.height)
}

// BBoxString renders the visible extent in WMS bbox order.
func (s *Session) BBoxString() string {
	b := s.Bounds()
	return b.BBoxString()
}

// ContainerPoint projects a geographic point to container pixel
// coordinates relative to the top-left of the visible viewport.
func (s *Session) ContainerPoint(ll model.LatLng) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cx, cy := Project(s.viewport.Center, s.viewport.Zoom)
	px, py := Project(ll, s.viewport.Zoom)
	x := px - cx + float64(s.width)/2
	y := py - cy + float64(s.height)/2
	return int(x + 0.5), int(y + 0.5)
}

// OnClick subscribes to map clicks; the returned func detaches the handler.
func (s *Session) OnClick(fn func(ClickEvent)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.clickSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.clickSubs, id)
		s.mu.Unlock()
	}
}

// OnMoveEnd subscribes to camera changes; the returned func detaches.
func (s *Session) OnMoveEnd(fn func(model.Viewport)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.moveSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.moveSubs, id)
		s.mu.Unlock()
	}
}

// ReportTileError forwards a failed tile url to the renderer that owns it.
// Returns false when the renderer is gone or does not recover tiles.
func (s *Session) ReportTileError(key int, tileURL string) bool {
	s.mu.Lock()
	r, ok := s.byKey[key]
	s.mu.Unlock()
	if !ok || r.OnTileError == nil {
		return false
	}
	r.OnTileError(tileURL)
	return true
}

// Click delivers a user click at a geographic point to all click handlers,
// with the pixel/viewport geometry a feature-info query needs.
func (s *Session) Click(ll model.LatLng) {
	x, y := s.ContainerPoint(ll)
	s.mu.Lock()
	w, h := s.width, s.height
	bbox := s.boundsLocked().BBoxString()
	subs := make([]func(ClickEvent), 0, len(s.clickSubs))
	for _, fn := range s.clickSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	ev := ClickEvent{LatLng: ll, X: x, Y: y, SizeX: w, SizeY: h, BBox: bbox}
	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Session) moveSubsLocked() []func(model.Viewport) {
	out := make([]func(model.Viewport), 0, len(s.moveSubs))
	for _, fn := range s.moveSubs {
		out = append(out, fn)
	}
	return out
}

// Destroy detaches every renderer and handler.
func (s *Session) Destroy() {
	s.RemoveWhere(func(*Renderer) bool { return true })
	s.mu.Lock()
	s.clickSubs = map[int]func(ClickEvent){}
	s.moveSubs = map[int]func(model.Viewport){}
	s.loaded = false
	s.mu.Unlock()
}

func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("mapsurface.Session{renderers=%d zoom=%.1f}", len(s.order), s.viewport.Zoom)
}
