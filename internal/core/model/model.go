// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
)

// LayerKind groups raw catalogue layer types into the rendering pathways the
// reconciler knows how to drive. The raw type string is kept on the
// descriptor because the hindcast pathway needs it for filename templating.
type LayerKind string

const (
	RasterTiled      LayerKind = "RASTER_TILED"
	RasterTimeSliced LayerKind = "RASTER_TIME_SLICED"
	RasterUGrid      LayerKind = "RASTER_UGRID"
	RasterCOG        LayerKind = "RASTER_COG"
	VectorWFS        LayerKind = "VECTOR_WFS"
	VectorBuoy       LayerKind = "VECTOR_BUOY"
	VectorTide       LayerKind = "VECTOR_TIDE"
)

// KindOf derives the rendering pathway from a raw catalogue type string.
// Forecast suffixes are stripped for grouping; the COG flag wins over
// everything because it is an alternate delivery path for the same dataset.
func KindOf(rawType string, enableCOG bool) LayerKind {
	if enableCOG {
		return RasterCOG
	}
	t := strings.ToUpper(strings.TrimSpace(rawType))
	t = strings.TrimSuffix(t, "_FORECAST")
	switch t {
	case "WMS", "WMS_HINDCAST":
		return RasterTimeSliced
	case "WMS_UGRID":
		return RasterUGrid
	case "WFS":
		return VectorWFS
	case "SOFAR":
		return VectorBuoy
	case "TIDE":
		return VectorTide
	default:
		return RasterTiled
	}
}

func (k LayerKind) IsRaster() bool {
	switch k {
	case RasterTiled, RasterTimeSliced, RasterUGrid, RasterCOG:
		return true
	}
	return false
}

// Bounds is a geographic rectangle in EPSG:4326.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// BBoxString renders the bounds in WMS bbox order (west,south,east,north).
func (b Bounds) BBoxString() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.West, b.South, b.East, b.North)
}

// DiffersFrom reports whether any edge differs from other by more than eps
// degrees. Used to suppress redundant fit-bounds on viewport read-back.
func (b Bounds) DiffersFrom(other Bounds, eps float64) bool {
	return abs(b.South-other.South) > eps ||
		abs(b.West-other.West) > eps ||
		abs(b.North-other.North) > eps ||
		abs(b.East-other.East) > eps
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Viewport is the map camera state. The surface is authoritative during
// user interaction; the store is authoritative for programmatic fits.
type Viewport struct {
	Center    LatLng  `json:"center"`
	Zoom      float64 `json:"zoom"`
	Bounds    *Bounds `json:"bounds,omitempty"`
	MaxBounds *Bounds `json:"max_bounds,omitempty"`
}

// BaseMap is the persisted base-map choice.
type BaseMap struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	Option      string `json:"option"`
	MaxZoom     int    `json:"max_zoom,omitempty"`
	MinZoom     int    `json:"min_zoom,omitempty"`
}

// LayerDescriptor is one user-activated dataset layer. Field presence varies
// by Kind; Validate enforces the per-kind requirements at store boundaries.
type LayerDescriptor struct {
	ID      string    `json:"id"`
	RawType string    `json:"layer_type"`
	Kind    LayerKind `json:"kind"`

	URL           string  `json:"url"`
	LayerName     string  `json:"layer_name"`
	Style         string  `json:"style"`
	Opacity       float64 `json:"opacity"`
	ColorMin      float64 `json:"colormin"`
	ColorMax      float64 `json:"colormax"`
	NumColorBands int     `json:"numcolorbands"`
	LogScale      bool    `json:"logscale"`
	AboveMaxColor string  `json:"abovemaxcolor,omitempty"`
	BelowMinColor string  `json:"belowmincolor,omitempty"`
	LegendURL     string  `json:"legend_url,omitempty"`

	TimeIntervalStart string `json:"timeIntervalStart,omitempty"`
	TimeIntervalEnd   string `json:"timeIntervalEnd,omitempty"`
	IntervalStepHours int    `json:"interval_step_hours,omitempty"`
	IsTimeSeries      bool   `json:"is_timeseries"`

	Enabled     bool   `json:"enabled"`
	IsComposite bool   `json:"is_composite"`
	ZoomToLayer bool   `json:"zoomToLayer"`
	EnableCOG   bool   `json:"enable_cog"`
	COGParams   string `json:"cog_params,omitempty"`

	// Hindcast filename template, e.g. "ww3.glob_24m./%Y%m/.nc".
	CompositeLayerID string `json:"composite_layer_id,omitempty"`

	SelectedFeatureTypes []int `json:"selected_feature_types,omitempty"`

	SouthBound float64 `json:"south_bound_latitude,omitempty"`
	NorthBound float64 `json:"north_bound_latitude,omitempty"`
	EastBound  float64 `json:"east_bound_longitude,omitempty"`
	WestBound  float64 `json:"west_bound_longitude,omitempty"`

	// Detail-panel timeseries endpoint with a ${station} placeholder.
	TimeseriesURL string `json:"timeseries_url,omitempty"`
}

// DisplayTime picks the timestamp sent to the renderer: time-series and
// forecast-style layers show the interval start, archives show the end.
func (d LayerDescriptor) DisplayTime() string {
	if d.IsTimeSeries {
		return d.TimeIntervalStart
	}
	switch strings.ToUpper(d.RawType) {
	case "WMS_FORECAST", "WMS_UGRID":
		return d.TimeIntervalStart
	}
	if d.TimeIntervalEnd != "" {
		return d.TimeIntervalEnd
	}
	return d.TimeIntervalStart
}

// Extent returns the descriptor's fit-bounds extent, or false when the
// catalogue did not provide one.
func (d LayerDescriptor) Extent() (Bounds, bool) {
	if d.SouthBound == 0 && d.NorthBound == 0 && d.EastBound == 0 && d.WestBound == 0 {
		return Bounds{}, false
	}
	return Bounds{South: d.SouthBound, West: d.WestBound, North: d.NorthBound, East: d.EastBound}, true
}

func (d LayerDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("layer descriptor: id is required")
	}
	if d.URL == "" {
		return fmt.Errorf("layer %s: url is required", d.ID)
	}
	switch d.Kind {
	case RasterTimeSliced, RasterUGrid:
		if d.LayerName == "" {
			return fmt.Errorf("layer %s: layer_name is required for %s", d.ID, d.Kind)
		}
	case RasterCOG:
		if strings.TrimSpace(d.COGParams) == "" {
			return fmt.Errorf("layer %s: cog_params is required when enable_cog is set", d.ID)
		}
	case VectorWFS, VectorBuoy, VectorTide, RasterTiled:
		// url alone is enough
	case "":
		return fmt.Errorf("layer %s: kind is not set", d.ID)
	default:
		return fmt.Errorf("layer %s: unknown kind %q", d.ID, d.Kind)
	}
	if d.Opacity < 0 || d.Opacity > 1 {
		return fmt.Errorf("layer %s: opacity %v out of [0,1]", d.ID, d.Opacity)
	}
	return nil
}

// CoordinateSelection is the per-click record read by the detail panel.
// One entry per descriptor id, overwritten on the next click for that id.
type CoordinateSelection struct {
	LayerID     string `json:"id"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	SizeX       int    `json:"sizex"`
	SizeY       int    `json:"sizey"`
	BBox        string `json:"bbox,omitempty"`
	Station     string `json:"station,omitempty"`
	Owner       string `json:"owner,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	DataLimit   int    `json:"data_limit,omitempty"`
}
