package raster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/oceanportal/workbench/internal/mapsurface"
)

// ErrNoFeatureInfo marks a click that produced nothing to show. Callers
// surface it as a warning, not a failure.
var ErrNoFeatureInfo = errors.New("no feature info at point")

// Popup is the resolved value under a map click.
type Popup struct {
	LayerID string `json:"layer_id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

var tdRe = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
var tagRe = regexp.MustCompile(`(?s)<[^>]*>`)

// FeatureInfo resolves a click against the topmost queryable raster on the
// surface. Direction-component layers only carry arrow glyphs, so any layer
// whose name contains "dir" is skipped in favour of the magnitude layer
// underneath it.
func (a *Adapter) FeatureInfo(ctx context.Context, sess *mapsurface.Session, ev mapsurface.ClickEvent) (Popup, error) {
	target, ok := pickQueryable(sess.VisibleRasters())
	if !ok {
		return Popup{}, ErrNoFeatureInfo
	}

	u := featureInfoURL(target, ev)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Popup{}, fmt.Errorf("feature info: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return Popup{}, fmt.Errorf("feature info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Popup{}, fmt.Errorf("feature info: upstream status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Popup{}, fmt.Errorf("feature info: %w", err)
	}

	name, value, ok := parseFeatureInfoHTML(string(body))
	if !ok {
		return Popup{}, ErrNoFeatureInfo
	}
	return Popup{LayerID: target.LayerID, Name: name, Value: value}, nil
}

func pickQueryable(rasters []mapsurface.Renderer) (mapsurface.Renderer, bool) {
	for i := len(rasters) - 1; i >= 0; i-- {
		if !strings.Contains(strings.ToLower(rasters[i].LayerName), "dir") {
			return rasters[i], true
		}
	}
	return mapsurface.Renderer{}, false
}

// featureInfoURL mirrors the GetMap request shape for the clicked extent.
// WMS 1.3.0 renamed the pixel offsets from x/y to i/j.
func featureInfoURL(r mapsurface.Renderer, ev mapsurface.ClickEvent) string {
	version := r.Params["version"]
	if version == "" {
		version = "1.1.1"
	}
	q := url.Values{}
	q.Set("service", "WMS")
	q.Set("request", "GetFeatureInfo")
	q.Set("version", version)
	q.Set("layers", r.LayerName)
	q.Set("query_layers", r.LayerName)
	q.Set("styles", r.Params["styles"])
	q.Set("bbox", ev.BBox)
	q.Set("width", strconv.Itoa(ev.SizeX))
	q.Set("height", strconv.Itoa(ev.SizeY))
	q.Set("info_format", "text/html")
	q.Set("transparent", "true")
	if t := r.Params["time"]; t != "" {
		q.Set("time", t)
	}
	if version == "1.3.0" {
		q.Set("crs", "EPSG:4326")
		q.Set("i", strconv.Itoa(ev.X))
		q.Set("j", strconv.Itoa(ev.Y))
	} else {
		q.Set("srs", "EPSG:4326")
		q.Set("x", strconv.Itoa(ev.X))
		q.Set("y", strconv.Itoa(ev.Y))
	}
	return appendQuery(r.URL, q)
}

// parseFeatureInfoHTML pulls the variable name and value out of the
// ncWMS-style HTML table. The name sits in the first cell, the value in the
// sixth; anything else means the point had no data.
func parseFeatureInfoHTML(body string) (name, value string, ok bool) {
	cells := tdRe.FindAllStringSubmatch(body, -1)
	if len(cells) < 6 {
		return "", "", false
	}
	name = cleanCell(cells[0][1])
	value = cleanCell(cells[5][1])
	if value == "" || strings.EqualFold(value, "none") {
		return "", "", false
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		value = strconv.FormatFloat(round2(f), 'f', -1, 64)
	}
	return name, value, true
}

func cleanCell(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}

func round2(f float64) float64 {
	if f < 0 {
		return float64(int64(f*100-0.5)) / 100
	}
	return float64(int64(f*100+0.5)) / 100
}
