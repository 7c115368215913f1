package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/feedcache"
	"github.com/oceanportal/workbench/internal/mapsurface"
)

// markerZIndex keeps point markers above every raster band.
const markerZIndex = 600

// ErrStale marks a feed response that arrived after a newer request for the
// same layer was dispatched. Stale results are dropped, never rendered.
var ErrStale = errors.New("vector feed response superseded")

// SelectionSink receives the coordinate selection when a marker is clicked.
type SelectionSink interface {
	SetSelection(sel model.CoordinateSelection)
}

type Adapter struct {
	logger      *slog.Logger
	client      *http.Client
	radiusPx    float64
	radiusBuoy  float64
	disableZoom float64
	cache       *feedcache.Cache

	mu     sync.Mutex
	tokens map[string]uint64
}

// UseCache puts a feed cache in front of the network fetch. Optional; the
// adapter works uncached.
func (a *Adapter) UseCache(c *feedcache.Cache) { a.cache = c }

func New(logger *slog.Logger, client *http.Client, radiusPx, radiusBuoyPx, disableClusteringZoom float64) *Adapter {
	return &Adapter{
		logger:      logger,
		client:      client,
		radiusPx:    radiusPx,
		radiusBuoy:  radiusBuoyPx,
		disableZoom: disableClusteringZoom,
		tokens:      map[string]uint64{},
	}
}

// Build fetches the descriptor's feed and returns a marker renderer for the
// given zoom. Each call supersedes any in-flight fetch for the same layer:
// if a newer Build started while this one waited on the network, the result
// is discarded with ErrStale so out-of-order responses cannot clobber fresh
// markers.
func (a *Adapter) Build(ctx context.Context, d model.LayerDescriptor, zoom float64) (mapsurface.Renderer, error) {
	token := a.nextToken(d.ID)

	stations, err := a.fetchFeed(ctx, d)
	if err != nil {
		return mapsurface.Renderer{}, err
	}
	if !a.tokenCurrent(d.ID, token) {
		return mapsurface.Renderer{}, fmt.Errorf("layer %s: %w", d.ID, ErrStale)
	}

	stations = filterTypes(stations, d.SelectedFeatureTypes)
	stations = normalize(stations)

	radius := a.radiusPx
	if d.Kind == model.VectorBuoy {
		radius = a.radiusBuoy
	}
	markers := cluster(stations, zoom, radius, a.disableZoom)
	a.logger.Debug("vector feed rendered",
		"layer_id", d.ID, "stations", len(stations), "markers", len(markers))

	return mapsurface.Renderer{
		LayerID: d.ID,
		Kind:    "markers",
		ZIndex:  markerZIndex,
		Markers: markers,
	}, nil
}

// Forget drops the staleness token for a removed layer.
func (a *Adapter) Forget(layerID string) {
	a.mu.Lock()
	delete(a.tokens, layerID)
	a.mu.Unlock()
}

// Select translates a marker click into the coordinate selection the detail
// panel reads. Cluster markers are not selectable; the tooltip already tells
// the user to zoom in.
func (a *Adapter) Select(d model.LayerDescriptor, m mapsurface.Marker, sink SelectionSink) bool {
	if m.Count > 1 {
		return false
	}
	sink.SetSelection(model.CoordinateSelection{
		LayerID:     d.ID,
		Station:     m.Station,
		Owner:       m.Owner,
		DisplayName: m.DisplayName,
		DataLimit:   m.DataLimit,
	})
	return true
}

func (a *Adapter) nextToken(layerID string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[layerID]++
	return a.tokens[layerID]
}

func (a *Adapter) tokenCurrent(layerID string, token uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens[layerID] == token
}
