package vector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/feedcache"
	"github.com/oceanportal/workbench/internal/mapsurface"
	"github.com/oceanportal/workbench/internal/redisstore"
)

func testVectorAdapter(client *http.Client) *Adapter {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), client, 35, 30, 14)
}

func TestParseBuoyFeedDefaults(t *testing.T) {
	body := []byte(`[
		{"longitude": 178.2, "latitude": -18.1, "station_id": "SPC-001",
		 "display_name": "Suva", "is_active": true, "owner": "SPC", "type_id": 2},
		{"longitude": -171.0, "latitude": -13.8, "station_id": "SPC-002",
		 "display_name": "Apia", "is_active": false, "owner": "SPC", "type_id": 3,
		 "data_limit": 500}
	]`)
	got, err := parseBuoyFeed(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("stations = %d, want 2", len(got))
	}
	if got[0].DataLimit != defaultDataLimit {
		t.Fatalf("default data limit = %d, want %d", got[0].DataLimit, defaultDataLimit)
	}
	if got[1].DataLimit != 500 {
		t.Fatalf("explicit data limit = %d, want 500", got[1].DataLimit)
	}
}

func TestParseGeoJSONFeedSkipsNonPoints(t *testing.T) {
	body := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[179.2,-8.5]},
		 "properties":{"station_id":"TG-07","location":"Funafuti","country_na":"Tuvalu"}},
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},
		 "properties":{"name":"eez"}}
	]}`)
	got, err := parseGeoJSONFeed(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("stations = %d, want 1 (polygon skipped)", len(got))
	}
	s := got[0]
	if s.StationID != "TG-07" || s.DisplayName != "Funafuti" || s.Owner != "Tuvalu" {
		t.Fatalf("station = %+v", s)
	}
}

func TestNormalizeDuplicatesNearSeam(t *testing.T) {
	got := normalize([]Station{
		{StationID: "east", Lng: 179.9, Lat: -10},
		{StationID: "west", Lng: -179.9, Lat: -10},
		{StationID: "mid", Lng: 10, Lat: 0},
	})
	if len(got) != 5 {
		t.Fatalf("stations = %d, want 5 (two twins)", len(got))
	}
	byLng := map[float64]string{}
	for _, s := range got {
		byLng[s.Lng] = s.StationID
	}
	if byLng[179.9+360] != "east" {
		t.Fatalf("missing wrapped twin at %v", 179.9+360)
	}
	if byLng[-179.9+360] != "west" {
		t.Fatalf("missing wrapped twin at %v", -179.9+360)
	}
}

func TestNormalizeWrapsOutOfRange(t *testing.T) {
	got := normalize([]Station{{Lng: 190}})
	if got[0].Lng != -170 {
		t.Fatalf("wrapped lng = %v, want -170", got[0].Lng)
	}
}

func TestFilterTypes(t *testing.T) {
	stations := []Station{{TypeID: 1}, {TypeID: 2}, {TypeID: 3}}
	got := filterTypes(stations, []int{2})
	if len(got) != 1 || got[0].TypeID != 2 {
		t.Fatalf("filtered = %+v", got)
	}
	if n := len(filterTypes(stations, nil)); n != 3 {
		t.Fatalf("empty selection filtered to %d, want all 3", n)
	}
}

func TestClusterMergesNearbyStations(t *testing.T) {
	// ~0.01 degrees apart: a handful of pixels at zoom 4, far apart at 16.
	stations := []Station{
		{StationID: "a", Lat: -18.10, Lng: 178.40},
		{StationID: "b", Lat: -18.11, Lng: 178.41},
		{StationID: "c", Lat: 0, Lng: 10},
	}
	markers := cluster(stations, 4, 30, 14)
	if len(markers) != 2 {
		t.Fatalf("markers = %d, want 2", len(markers))
	}
	var c *mapsurface.Marker
	for i := range markers {
		if markers[i].Count > 1 {
			c = &markers[i]
		}
	}
	if c == nil {
		t.Fatal("no cluster marker produced")
	}
	if c.Count != 2 {
		t.Fatalf("cluster size = %d, want 2", c.Count)
	}
	if c.Tooltip != "2 stations here, zoom in" {
		t.Fatalf("tooltip = %q", c.Tooltip)
	}
}

func TestClusterDisabledWhenZoomedIn(t *testing.T) {
	stations := []Station{
		{StationID: "a", Lat: -18.10, Lng: 178.40},
		{StationID: "b", Lat: -18.10, Lng: 178.40},
	}
	markers := cluster(stations, 14, 30, 14)
	if len(markers) != 2 {
		t.Fatalf("markers = %d, want 2 individual markers at disable zoom", len(markers))
	}
}

func TestBuildClustersSeamTwins(t *testing.T) {
	// One station near the antimeridian: its wrapped twin must cluster on
	// its own side, not merge across the seam.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"longitude":179.9,"latitude":-10,"station_id":"S1","display_name":"Seam","is_active":true,"type_id":1}]`))
	}))
	defer srv.Close()

	a := testVectorAdapter(srv.Client())
	r, err := a.Build(context.Background(), model.LayerDescriptor{
		ID: "buoy-1", Kind: model.VectorBuoy, URL: srv.URL,
	}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Markers) != 2 {
		t.Fatalf("markers = %d, want original plus twin", len(r.Markers))
	}
	if r.Markers[0].Station != r.Markers[1].Station {
		t.Fatal("twin must carry the same station id")
	}
	if r.ZIndex != markerZIndex {
		t.Fatalf("zindex = %d, want %d", r.ZIndex, markerZIndex)
	}
}

func TestBuildDropsSupersededResponse(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	a := testVectorAdapter(srv.Client())
	d := model.LayerDescriptor{ID: "buoy-1", Kind: model.VectorBuoy, URL: srv.URL}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = a.Build(context.Background(), d, 4)
	}()

	// Dispatch a newer request while the first is blocked on the network.
	a.nextToken(d.ID)
	close(release)
	wg.Wait()

	if !errors.Is(firstErr, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", firstErr)
	}
}

func TestBuildServesSecondRequestFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[{"longitude":110.4,"latitude":-18.1,"station_id":"S1","is_active":true,"type_id":1}]`))
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	a := testVectorAdapter(srv.Client())
	a.UseCache(feedcache.New(cli, slog.New(slog.NewTextHandler(io.Discard, nil)), 5, time.Minute, nil))
	d := model.LayerDescriptor{ID: "buoy-1", Kind: model.VectorBuoy, URL: srv.URL}

	for i := 0; i < 2; i++ {
		r, err := a.Build(context.Background(), d, 4)
		if err != nil {
			t.Fatal(err)
		}
		if len(r.Markers) != 1 {
			t.Fatalf("markers = %d", len(r.Markers))
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want 1", hits.Load())
	}
}

type sinkFunc func(model.CoordinateSelection)

func (f sinkFunc) SetSelection(sel model.CoordinateSelection) { f(sel) }

func TestSelectDispatchesCoordinateSelection(t *testing.T) {
	a := testVectorAdapter(http.DefaultClient)
	d := model.LayerDescriptor{ID: "buoy-1", Kind: model.VectorBuoy}

	var got model.CoordinateSelection
	ok := a.Select(d, mapsurface.Marker{
		Count: 1, Station: "SPC-001", Owner: "SPC", DisplayName: "Suva", DataLimit: 100,
	}, sinkFunc(func(sel model.CoordinateSelection) { got = sel }))
	if !ok {
		t.Fatal("single marker must be selectable")
	}
	if got.LayerID != "buoy-1" || got.Station != "SPC-001" || got.DataLimit != 100 {
		t.Fatalf("selection = %+v", got)
	}

	if a.Select(d, mapsurface.Marker{Count: 5}, sinkFunc(func(model.CoordinateSelection) {
		t.Fatal("cluster click must not dispatch")
	})) {
		t.Fatal("cluster marker must not be selectable")
	}
}
