package mapsurface

import (
	"math"

	"github.com/oceanportal/workbench/internal/core/model"
)

const tileSize = 256

// Project maps a geographic point to world pixel coordinates in the
// spherical-mercator pyramid at the given zoom.
func Project(ll model.LatLng, zoom float64) (x, y float64) {
	scale := tileSize * math.Exp2(zoom)
	lat := math.Max(math.Min(ll.Lat, 85.0511), -85.0511)
	sin := math.Sin(lat * math.Pi / 180)
	x = scale * (ll.Lng + 180) / 360
	y = scale * (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi))
	return x, y
}

// Unproject maps world pixel coordinates back to a geographic point, the
// inverse of Project.
func Unproject(x, y, zoom float64) model.LatLng {
	scale := tileSize * math.Exp2(zoom)
	n := math.Pi - 2*math.Pi*y/scale
	return model.LatLng{
		Lat: 180 / math.Pi * math.Atan(math.Sinh(n)),
		Lng: x/scale*360 - 180,
	}
}

// boundsAround derives the visible extent of a viewport of the given pixel
// size centred on a point.
func boundsAround(center model.LatLng, zoom float64, width, height int) model.Bounds {
	cx, cy := Project(center, zoom)
	nw := Unproject(cx-float64(width)/2, cy-float64(height)/2, zoom)
	se := Unproject(cx+float64(width)/2, cy+float64(height)/2, zoom)
	return model.Bounds{South: se.Lat, West: nw.Lng, North: nw.Lat, East: se.Lng}
}

// zoomForBounds picks the largest integer-and-half zoom at which the bounds
// fit the given pixel viewport, clamped to the portal's zoom range.
func zoomForBounds(b model.Bounds, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 2
	}
	lngSpan := b.East - b.West
	if lngSpan <= 0 {
		lngSpan += 360
	}
	latSpan := b.North - b.South
	if latSpan <= 0 {
		latSpan = 0.001
	}
	zx := math.Log2(float64(width) / tileSize * 360 / lngSpan)
	zy := math.Log2(float64(height) / tileSize * 180 / latSpan)
	z := math.Floor(math.Min(zx, zy)*2) / 2
	if z < 2 {
		z = 2
	}
	if z > 18 {
		z = 18
	}
	return z
}
