package store

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/oceanportal/workbench/internal/core/model"
)

// Signature hashes every render-affecting field of a descriptor. The
// reconciler replaces a layer's renderers whenever this value changes, so
// any field that alters rendering output must be included here and any
// bookkeeping field must not be.
func Signature(d model.LayerDescriptor) uint64 {
	var b strings.Builder
	b.Grow(256)
	parts := []string{
		d.ID,
		boolBit(d.Enabled),
		boolBit(d.EnableCOG),
		string(d.Kind),
		d.RawType,
		d.URL,
		d.LayerName,
		d.TimeIntervalStart,
		d.TimeIntervalEnd,
		strconv.FormatFloat(d.ColorMin, 'g', -1, 64),
		strconv.FormatFloat(d.ColorMax, 'g', -1, 64),
		strconv.FormatFloat(d.Opacity, 'g', -1, 64),
		d.Style,
		boolBit(d.IsComposite),
		strconv.Itoa(d.NumColorBands),
		boolBit(d.LogScale),
		d.COGParams,
	}
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return xxhash.Sum64String(b.String())
}

// Signatures maps each descriptor id to its render signature.
func Signatures(layers []model.LayerDescriptor) map[string]uint64 {
	out := make(map[string]uint64, len(layers))
	for _, l := range layers {
		out[l.ID] = Signature(l)
	}
	return out
}

func boolBit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
