package vector

// seamThreshold is the longitude beyond which a station gets a wrapped twin,
// so Pacific-centred views see markers on both sides of the antimeridian.
const seamThreshold = 150

// normalize wraps longitudes into [-180, 180] and duplicates stations near
// the dateline at lng+360, the world copy a Pacific-centred view pans into.
// Twins share every property with the original, so clicking either side
// selects the same station.
func normalize(stations []Station) []Station {
	out := make([]Station, 0, len(stations))
	for _, s := range stations {
		s.Lng = wrapLng(s.Lng)
		out = append(out, s)
		if s.Lng > seamThreshold || s.Lng < -seamThreshold {
			twin := s
			twin.Lng = s.Lng + 360
			out = append(out, twin)
		}
	}
	return out
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

// filterTypes keeps only stations whose type id is in the selection. An
// empty selection means no filtering.
func filterTypes(stations []Station, selected []int) []Station {
	if len(selected) == 0 {
		return stations
	}
	want := make(map[int]struct{}, len(selected))
	for _, id := range selected {
		want[id] = struct{}{}
	}
	out := stations[:0:0]
	for _, s := range stations {
		if _, ok := want[s.TypeID]; ok {
			out = append(out, s)
		}
	}
	return out
}
