// Package raster adapts raster layer descriptors (WMS, UGRID, hindcast and
// COG pathways) into tile renderers on the map surface, and serves the
// feature-info click queries against the resulting layers.
package raster

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/mapsurface"
)

// datasetZIndex is the z band for dataset rasters: above the base map,
// below the static overlays at 401-403.
const datasetZIndex = 400

type Adapter struct {
	logger     *slog.Logger
	client     *http.Client
	probe      *http.Client
	retryLimit int
	retryDelay time.Duration
}

func New(logger *slog.Logger, client, probe *http.Client, retryLimit int, retryDelay time.Duration) *Adapter {
	if retryLimit <= 0 {
		retryLimit = 3
	}
	if retryDelay <= 0 {
		retryDelay = 3 * time.Second
	}
	return &Adapter{
		logger:     logger,
		client:     client,
		probe:      probe,
		retryLimit: retryLimit,
		retryDelay: retryDelay,
	}
}

// Build turns one raster descriptor into the renderers to attach. Composite
// descriptors yield one renderer per sub-layer, all tagged with the parent
// descriptor id so removal stays atomic.
func (a *Adapter) Build(d model.LayerDescriptor) ([]mapsurface.Renderer, error) {
	switch d.Kind {
	case model.RasterTimeSliced:
		u := d.URL
		if strings.EqualFold(d.RawType, "WMS_HINDCAST") {
			hu, err := HindcastURL(d.URL, d.CompositeLayerID, d.TimeIntervalEnd)
			if err != nil {
				return nil, err
			}
			u = hu
		}
		return a.buildWMS(d, u, ",", false), nil
	case model.RasterUGrid:
		return a.buildWMS(d, d.URL, "%", true), nil
	case model.RasterCOG:
		r, err := a.buildCOG(d)
		if err != nil {
			return nil, err
		}
		return []mapsurface.Renderer{r}, nil
	case model.RasterTiled:
		return []mapsurface.Renderer{{
			LayerID: d.ID,
			Kind:    "tile",
			URL:     d.URL,
			ZIndex:  datasetZIndex,
			Params:  map[string]string{"opacity": formatFloat(d.Opacity)},
		}}, nil
	default:
		return nil, fmt.Errorf("raster adapter: unsupported kind %s", d.Kind)
	}
}

// buildWMS handles plain and composite WMS sources. UGRID composites split
// the url as well as the names and styles, and render with an extended
// background so the mesh edge does not clip.
func (a *Adapter) buildWMS(d model.LayerDescriptor, baseURL, sep string, ugrid bool) []mapsurface.Renderer {
	names := []string{d.LayerName}
	styles := []string{d.Style}
	urls := []string{baseURL}
	if d.IsComposite {
		names = splitTrim(d.LayerName, sep)
		styles = splitTrim(d.Style, sep)
		if ugrid {
			urls = splitTrim(baseURL, sep)
		}
	}

	displayTime := d.DisplayTime()
	var out []mapsurface.Renderer
	for i, name := range names {
		if name == "" {
			continue
		}
		style := ""
		if i < len(styles) {
			style = styles[i]
		}
		u := urls[0]
		if i < len(urls) {
			u = urls[i]
		}

		params := map[string]string{
			"layers":      name,
			"styles":      style,
			"format":      "image/png",
			"transparent": "true",
			"opacity":     formatFloat(d.Opacity),
			"time":        displayTime,
			"logscale":    strconv.FormatBool(d.LogScale),
		}
		// Secondary comma-composite sub-layers (direction arrows etc.) do
		// not carry the colour-scale vendor params; UGRID sub-layers do.
		if i == 0 || ugrid {
			params["colorscalerange"] = formatFloat(d.ColorMin) + ", " + formatFloat(d.ColorMax)
			params["numcolorbands"] = strconv.Itoa(d.NumColorBands)
			if d.AboveMaxColor != "" {
				params["abovemaxcolor"] = d.AboveMaxColor
			}
			if d.BelowMinColor != "" {
				params["belowmincolor"] = d.BelowMinColor
			}
		}
		if ugrid {
			params["bgcolor"] = "extend"
		}

		retrier := a.newRetrier()
		out = append(out, mapsurface.Renderer{
			LayerID:     d.ID,
			Kind:        "wms",
			LayerName:   name,
			URL:         u,
			ZIndex:      datasetZIndex,
			Params:      params,
			OnTileError: retrier.OnTileError,
			Teardown:    retrier.Stop,
		})
	}
	return out
}

// GetMapURL builds a WMS GetMap request for the renderer over the given
// extent. Vendor params (colorscalerange and friends) ride along verbatim.
func GetMapURL(r mapsurface.Renderer, b model.Bounds, width, height int) string {
	q := url.Values{}
	q.Set("service", "WMS")
	q.Set("request", "GetMap")
	q.Set("version", "1.1.1")
	q.Set("srs", "EPSG:4326")
	q.Set("bbox", b.BBoxString())
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	for k, v := range r.Params {
		if k == "opacity" || v == "" {
			continue
		}
		q.Set(k, v)
	}
	return appendQuery(r.URL, q)
}

func appendQuery(base string, q url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
