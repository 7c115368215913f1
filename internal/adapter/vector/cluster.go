package vector

import (
	"fmt"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/mapsurface"
)

// cluster groups stations whose projected positions fall within radiusPx of
// a cluster seed at the given zoom. Above disableZoom every station renders
// individually so nearby gauges stay distinguishable when zoomed in close.
func cluster(stations []Station, zoom float64, radiusPx float64, disableZoom float64) []mapsurface.Marker {
	if zoom >= disableZoom || radiusPx <= 0 {
		out := make([]mapsurface.Marker, 0, len(stations))
		for _, s := range stations {
			out = append(out, singleMarker(s))
		}
		return out
	}

	type seed struct {
		x, y    float64
		members []Station
	}
	var seeds []*seed
	for _, s := range stations {
		x, y := mapsurface.Project(model.LatLng{Lat: s.Lat, Lng: s.Lng}, zoom)
		placed := false
		for _, c := range seeds {
			dx, dy := x-c.x, y-c.y
			if dx*dx+dy*dy <= radiusPx*radiusPx {
				c.members = append(c.members, s)
				placed = true
				break
			}
		}
		if !placed {
			seeds = append(seeds, &seed{x: x, y: y, members: []Station{s}})
		}
	}

	out := make([]mapsurface.Marker, 0, len(seeds))
	for _, c := range seeds {
		if len(c.members) == 1 {
			out = append(out, singleMarker(c.members[0]))
			continue
		}
		var lat, lng float64
		for _, m := range c.members {
			lat += m.Lat
			lng += m.Lng
		}
		n := float64(len(c.members))
		out = append(out, mapsurface.Marker{
			Lat:     lat / n,
			Lng:     lng / n,
			Count:   len(c.members),
			Tooltip: fmt.Sprintf("%d stations here, zoom in", len(c.members)),
		})
	}
	return out
}

func singleMarker(s Station) mapsurface.Marker {
	return mapsurface.Marker{
		Lat:         s.Lat,
		Lng:         s.Lng,
		Count:       1,
		Station:     s.StationID,
		DisplayName: s.DisplayName,
		Owner:       s.Owner,
		Active:      s.Active,
		TypeID:      s.TypeID,
		DataLimit:   s.DataLimit,
		Tooltip:     s.DisplayName,
	}
}
