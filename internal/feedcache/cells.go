package feedcache

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/oceanportal/workbench/internal/core/model"
)

// CellsForBounds covers a geographic rectangle with H3 cells at res.
func CellsForBounds(b model.Bounds, res int) ([]string, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	outer := h3.GeoLoop{
		{Lat: b.South, Lng: b.West},
		{Lat: b.South, Lng: b.East},
		{Lat: b.North, Lng: b.East},
		{Lat: b.North, Lng: b.West},
	}
	poly := h3.GeoPolygon{GeoLoop: outer}
	indexes, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	return uniqueSorted(indexes), nil
}

// CellsForPoints maps station positions to their containing cells. The
// result is the feed's spatial footprint in the cell index.
func CellsForPoints(points []model.LatLng, res int) ([]string, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	cells := make([]h3.Cell, 0, len(points))
	for _, p := range points {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lng}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for (%v,%v): %w", p.Lat, p.Lng, err)
		}
		cells = append(cells, c)
	}
	return uniqueSorted(cells), nil
}

func uniqueSorted(indexes []h3.Cell) []string {
	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}
