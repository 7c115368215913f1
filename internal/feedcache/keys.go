package feedcache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// FeedKey names the cached body for one feed request. The url and feature
// type selection are hashed so arbitrary upstream urls never leak into the
// key space.
func FeedKey(layerID, url string, featureTypes []int) string {
	var b strings.Builder
	b.WriteString(url)
	for _, t := range featureTypes {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(t))
	}
	return fmt.Sprintf("feed:%s:%016x", layerID, xxhash.Sum64String(b.String()))
}

// footprintKey names the per-layer registry entry holding the layer's cell
// footprint and its live feed keys.
func footprintKey(layerID string) string {
	return "feedcells:" + layerID
}

const footprintPattern = "feedcells:*"
