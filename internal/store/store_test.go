package store

import (
	"errors"
	"testing"

	"github.com/oceanportal/workbench/internal/core/model"
)

func wmsDescriptor(id string) model.LayerDescriptor {
	return model.LayerDescriptor{
		ID:              id,
		RawType:         "WMS",
		URL:             "https://ocean.example/ncWMS/wms",
		LayerName:       "temp/sst",
		Style:           "default-scalar/x-Rainbow",
		Opacity:         1,
		ColorMin:        20,
		ColorMax:        32,
		NumColorBands:   250,
		TimeIntervalEnd: "2023-07-15T00:00:00Z",
		Enabled:         true,
	}
}

func drain(ch <-chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

func expectSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	default:
		t.Fatal("expected a change notification")
	}
}

func expectSilence(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected change notification")
	default:
	}
}

func TestAddRejectsDuplicateID(t *testing.T) {
	s := New()
	if err := s.Add(wmsDescriptor("sst")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(wmsDescriptor("sst")); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
	if got := len(s.Layers()); got != 1 {
		t.Fatalf("layer count = %d, want 1", got)
	}
}

func TestAddDerivesKindFromRawType(t *testing.T) {
	s := New()
	d := wmsDescriptor("sst")
	d.Kind = ""
	if err := s.Add(d); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, ok := s.Get("sst")
	if !ok {
		t.Fatal("layer missing after add")
	}
	if got.Kind != model.RasterTimeSliced {
		t.Fatalf("kind = %s, want %s", got.Kind, model.RasterTimeSliced)
	}
}

func TestUpdateUnknownLayer(t *testing.T) {
	s := New()
	err := s.Update(wmsDescriptor("ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateKeepsPosition(t *testing.T) {
	s := New()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Add(wmsDescriptor(id)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	d := wmsDescriptor("b")
	d.Opacity = 0.5
	if err := s.Update(d); err != nil {
		t.Fatalf("update: %v", err)
	}
	layers := s.Layers()
	if layers[1].ID != "b" || layers[1].Opacity != 0.5 {
		t.Fatalf("layers[1] = %s opacity %v, want b opacity 0.5", layers[1].ID, layers[1].Opacity)
	}
}

func TestSubscribeCoalescesBursts(t *testing.T) {
	s := New()
	ch := s.Subscribe()
	for i := 0; i < 5; i++ {
		if err := s.Add(wmsDescriptor(string(rune('a' + i)))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	expectSignal(t, ch)
	expectSilence(t, ch)
}

func TestSetEnabledNotifiesOnlyOnChange(t *testing.T) {
	s := New()
	if err := s.Add(wmsDescriptor("sst")); err != nil {
		t.Fatalf("add: %v", err)
	}
	ch := s.Subscribe()
	if !s.SetEnabled("sst", true) {
		t.Fatal("SetEnabled reported unknown layer")
	}
	expectSilence(t, ch)
	if !s.SetEnabled("sst", false) {
		t.Fatal("SetEnabled reported unknown layer")
	}
	expectSignal(t, ch)
	got, _ := s.Get("sst")
	if got.Enabled {
		t.Fatal("layer still enabled after disable")
	}
}

func TestClearOnEmptyIsSilent(t *testing.T) {
	s := New()
	ch := s.Subscribe()
	s.Clear()
	expectSilence(t, ch)
	if err := s.Add(wmsDescriptor("sst")); err != nil {
		t.Fatalf("add: %v", err)
	}
	drain(ch)
	s.Clear()
	expectSignal(t, ch)
	if got := len(s.Layers()); got != 0 {
		t.Fatalf("layer count after clear = %d, want 0", got)
	}
}

func TestRestoreForcesZoomToLayerOff(t *testing.T) {
	s := New()
	d := wmsDescriptor("sst")
	d.ZoomToLayer = true
	err := s.Restore(Snapshot{Layers: []model.LayerDescriptor{d}})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, ok := s.Get("sst")
	if !ok {
		t.Fatal("layer missing after restore")
	}
	if got.ZoomToLayer {
		t.Fatal("restored layer kept zoomToLayer")
	}
}

func TestRestoreRejectsDuplicateIDs(t *testing.T) {
	s := New()
	snap := Snapshot{Layers: []model.LayerDescriptor{wmsDescriptor("sst"), wmsDescriptor("sst")}}
	if err := s.Restore(snap); err == nil {
		t.Fatal("expected duplicate ids in snapshot to be rejected")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	if err := s.Add(wmsDescriptor("sst")); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.SetSelection(model.CoordinateSelection{LayerID: "sst", X: 12, Y: 34})

	snap := s.SnapshotState()

	restored := New()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := len(restored.Layers()); got != 1 {
		t.Fatalf("restored layer count = %d, want 1", got)
	}
	sel, ok := restored.Selection("sst")
	if !ok || sel.X != 12 || sel.Y != 34 {
		t.Fatalf("restored selection = %+v ok=%v", sel, ok)
	}
}

func TestSelectionIgnoresEmptyLayerID(t *testing.T) {
	s := New()
	ch := s.Subscribe()
	s.SetSelection(model.CoordinateSelection{X: 1, Y: 2})
	expectSilence(t, ch)
}

func TestOverlaysDefaultOnAndCoalesce(t *testing.T) {
	s := New()
	if o := s.Overlays(); !o.EEZ || !o.Coastline || !o.PlaceNames {
		t.Fatalf("default overlays = %+v, want all on", o)
	}
	ch := s.Subscribe()
	s.SetOverlays(s.Overlays())
	expectSilence(t, ch)
	s.SetOverlays(Overlays{EEZ: true})
	expectSignal(t, ch)
}

func TestSetBoundsRecordsOnViewport(t *testing.T) {
	s := New()
	b := model.Bounds{South: -25, West: 160, North: -5, East: 190}
	s.SetBounds(b)
	v := s.Viewport()
	if v.Bounds == nil || *v.Bounds != b {
		t.Fatalf("viewport bounds = %+v, want %+v", v.Bounds, b)
	}
}

func TestSignatureTracksRenderFields(t *testing.T) {
	base := wmsDescriptor("sst")
	ref := Signature(base)

	mutations := map[string]func(*model.LayerDescriptor){
		"enabled":       func(d *model.LayerDescriptor) { d.Enabled = false },
		"url":           func(d *model.LayerDescriptor) { d.URL += "/v2" },
		"layer_name":    func(d *model.LayerDescriptor) { d.LayerName = "temp/anom" },
		"time":          func(d *model.LayerDescriptor) { d.TimeIntervalEnd = "2023-08-01T00:00:00Z" },
		"colormin":      func(d *model.LayerDescriptor) { d.ColorMin = 18 },
		"colormax":      func(d *model.LayerDescriptor) { d.ColorMax = 35 },
		"opacity":       func(d *model.LayerDescriptor) { d.Opacity = 0.4 },
		"style":         func(d *model.LayerDescriptor) { d.Style = "default-scalar/x-Sst" },
		"numcolorbands": func(d *model.LayerDescriptor) { d.NumColorBands = 100 },
		"logscale":      func(d *model.LayerDescriptor) { d.LogScale = true },
		"cog_params":    func(d *model.LayerDescriptor) { d.COGParams = "rescale=0,30" },
	}
	for name, mutate := range mutations {
		d := base
		mutate(&d)
		if Signature(d) == ref {
			t.Errorf("mutating %s did not change the signature", name)
		}
	}
}

func TestSignatureIgnoresBookkeepingFields(t *testing.T) {
	base := wmsDescriptor("sst")
	ref := Signature(base)

	d := base
	d.ZoomToLayer = true
	d.LegendURL = "https://ocean.example/legend.png"
	d.TimeseriesURL = "https://ocean.example/ts?station=${station}"
	if Signature(d) != ref {
		t.Fatal("bookkeeping fields leaked into the signature")
	}

	if Signature(base) != ref {
		t.Fatal("signature is not stable across calls")
	}
}

func TestSignaturesMapsByID(t *testing.T) {
	layers := []model.LayerDescriptor{wmsDescriptor("a"), wmsDescriptor("b")}
	sigs := Signatures(layers)
	if len(sigs) != 2 {
		t.Fatalf("len = %d, want 2", len(sigs))
	}
	if sigs["a"] == sigs["b"] {
		t.Fatal("distinct ids hashed to the same signature")
	}
}
