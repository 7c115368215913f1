package mapsurface

import (
	"math"
	"testing"

	"github.com/oceanportal/workbench/internal/core/model"
)

func newTestSession() *Session {
	s := NewSession(800, 600, model.Viewport{
		Center: model.LatLng{Lat: -18, Lng: 178},
		Zoom:   4,
	})
	s.FinishLoad()
	return s
}

func TestAttachRemoveCallsTeardown(t *testing.T) {
	s := newTestSession()
	torn := false
	key := s.Attach(Renderer{
		LayerID:  "sst",
		Kind:     "wms",
		Teardown: func() { torn = true },
	})
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}
	if !s.Remove(key) {
		t.Fatal("Remove reported unknown key")
	}
	if !torn {
		t.Fatal("Teardown not called on remove")
	}
	if s.Remove(key) {
		t.Fatal("second Remove of the same key succeeded")
	}
}

func TestRemoveByLayerIDTakesAllRenderers(t *testing.T) {
	s := newTestSession()
	s.Attach(Renderer{LayerID: "composite", Kind: "wms"})
	s.Attach(Renderer{LayerID: "composite", Kind: "wms"})
	s.Attach(Renderer{LayerID: "other", Kind: "wms"})
	if n := s.RemoveByLayerID("composite"); n != 2 {
		t.Fatalf("removed %d renderers, want 2", n)
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}
}

func TestVisibleRastersOrderAndFilter(t *testing.T) {
	s := newTestSession()
	s.Attach(Renderer{LayerID: "base", Kind: "tile", IsBaseMap: true})
	s.Attach(Renderer{LayerID: "sst", Kind: "wms"})
	s.Attach(Renderer{LayerID: "stations", Kind: "markers"})
	s.Attach(Renderer{LayerID: "chl", Kind: "cog"})

	rasters := s.VisibleRasters()
	if len(rasters) != 2 {
		t.Fatalf("raster count = %d, want 2", len(rasters))
	}
	if rasters[0].LayerID != "sst" || rasters[1].LayerID != "chl" {
		t.Fatalf("raster order = %s,%s, want sst,chl", rasters[0].LayerID, rasters[1].LayerID)
	}
}

func TestReadyGating(t *testing.T) {
	s := NewSession(800, 600, model.Viewport{Zoom: 4})
	if s.Ready() {
		t.Fatal("ready before initial load")
	}
	s.FinishLoad()
	if !s.Ready() {
		t.Fatal("not ready after load")
	}
	s.SetAnimating(true)
	if s.Ready() {
		t.Fatal("ready while animating")
	}
	s.SetAnimating(false)
	s.SetVisible(false)
	if s.Ready() {
		t.Fatal("ready while hidden")
	}
	s.SetVisible(true)
	s.SetSize(0, 0)
	if s.Ready() {
		t.Fatal("ready with a zero-size container")
	}
}

func TestFitBoundsFiresMoveEnd(t *testing.T) {
	s := newTestSession()
	var got model.Viewport
	fired := 0
	detach := s.OnMoveEnd(func(v model.Viewport) {
		got = v
		fired++
	})

	b := model.Bounds{South: -25, West: 160, North: -5, East: 190}
	s.FitBounds(b)
	if fired != 1 {
		t.Fatalf("moveend fired %d times, want 1", fired)
	}
	if got.Center.Lat != -15 || got.Center.Lng != 175 {
		t.Fatalf("center = %+v, want -15,175", got.Center)
	}
	if got.Bounds == nil || *got.Bounds != b {
		t.Fatalf("bounds = %+v, want %+v", got.Bounds, b)
	}

	detach()
	s.FitBounds(b)
	if fired != 1 {
		t.Fatal("moveend fired after detach")
	}
}

func TestClickCarriesViewportGeometry(t *testing.T) {
	s := newTestSession()
	var got ClickEvent
	s.OnClick(func(ev ClickEvent) { got = ev })

	center := model.LatLng{Lat: -18, Lng: 178}
	s.Click(center)
	if got.X != 400 || got.Y != 300 {
		t.Fatalf("center click at %d,%d, want 400,300", got.X, got.Y)
	}
	if got.SizeX != 800 || got.SizeY != 600 {
		t.Fatalf("size = %dx%d, want 800x600", got.SizeX, got.SizeY)
	}
	if got.BBox == "" {
		t.Fatal("click event missing bbox")
	}

	s.Click(model.LatLng{Lat: -18, Lng: 179})
	if got.X <= 400 {
		t.Fatalf("click east of center projected to x=%d, want > 400", got.X)
	}
}

func TestDestroyTearsEverythingDown(t *testing.T) {
	s := newTestSession()
	torn := 0
	s.Attach(Renderer{LayerID: "a", Kind: "wms", Teardown: func() { torn++ }})
	s.Attach(Renderer{LayerID: "b", Kind: "markers", Teardown: func() { torn++ }})
	clicked := false
	s.OnClick(func(ClickEvent) { clicked = true })

	s.Destroy()
	if torn != 2 {
		t.Fatalf("teardowns = %d, want 2", torn)
	}
	if s.Count() != 0 {
		t.Fatalf("count = %d, want 0", s.Count())
	}
	s.Click(model.LatLng{})
	if clicked {
		t.Fatal("click handler survived Destroy")
	}
}

func TestProjectMonotonicInLngAndLat(t *testing.T) {
	x1, y1 := Project(model.LatLng{Lat: 0, Lng: 0}, 4)
	x2, y2 := Project(model.LatLng{Lat: 10, Lng: 10}, 4)
	if x2 <= x1 {
		t.Fatalf("x did not grow eastward: %v -> %v", x1, x2)
	}
	if y2 >= y1 {
		t.Fatalf("y did not shrink northward: %v -> %v", y1, y2)
	}

	// The equator at lng 0 sits at the middle of the world pyramid.
	world := 256 * math.Exp2(4)
	if math.Abs(x1-world/2) > 1e-6 || math.Abs(y1-world/2) > 1e-6 {
		t.Fatalf("origin projected to %v,%v, want %v,%v", x1, y1, world/2, world/2)
	}
}

func TestUnprojectInvertsProject(t *testing.T) {
	points := []model.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: -18, Lng: 178},
		{Lat: 10, Lng: -179.95},
		{Lat: 60, Lng: -30},
	}
	for _, p := range points {
		x, y := Project(p, 6)
		got := Unproject(x, y, 6)
		if math.Abs(got.Lat-p.Lat) > 1e-9 || math.Abs(got.Lng-p.Lng) > 1e-9 {
			t.Fatalf("round trip of %+v gave %+v", p, got)
		}
	}
}

func TestBoundsDerivedFromCamera(t *testing.T) {
	s := newTestSession()
	b := s.Bounds()
	if b.West >= b.East || b.South >= b.North {
		t.Fatalf("degenerate bounds %+v", b)
	}
	c := s.Viewport().Center
	if c.Lat <= b.South || c.Lat >= b.North || c.Lng <= b.West || c.Lng >= b.East {
		t.Fatalf("center %+v outside bounds %+v", c, b)
	}
	// 800 px at zoom 4 spans 800/(4096/360) degrees of longitude.
	wantSpan := 800.0 / (256 * 16 / 360.0)
	if got := b.East - b.West; math.Abs(got-wantSpan) > 1e-9 {
		t.Fatalf("lng span = %v, want %v", got, wantSpan)
	}
	if s.BBoxString() == "" {
		t.Fatal("empty bbox")
	}
}

func TestZoomForBoundsClamps(t *testing.T) {
	world := model.Bounds{South: -85, West: -180, North: 85, East: 180}
	if z := zoomForBounds(world, 800, 600); z != 2 {
		t.Fatalf("world fit zoom = %v, want clamp to 2", z)
	}
	tiny := model.Bounds{South: -18.0001, West: 178, North: -18, East: 178.0001}
	if z := zoomForBounds(tiny, 800, 600); z != 18 {
		t.Fatalf("tiny fit zoom = %v, want clamp to 18", z)
	}
	fiji := model.Bounds{South: -21, West: 176, North: -15, East: 182}
	z := zoomForBounds(fiji, 800, 600)
	if z <= 2 || z >= 18 {
		t.Fatalf("regional fit zoom = %v, want inside the clamp range", z)
	}
}
