package raster

import (
	"fmt"
	"strings"
	"time"
)

// HindcastURL rewrites the last path segment of the dataset url with the
// month-stamped filename derived from the composite template. The template
// is slash-delimited, e.g. "ww3.glob_24m./%Y%m/.nc": the middle part marks
// where the YYYYMM stamp from the interval end lands.
func HindcastURL(rawURL, template, intervalEnd string) (string, error) {
	parts := strings.Split(template, "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("hindcast: malformed filename template %q", template)
	}
	t, err := parseLayerTime(intervalEnd)
	if err != nil {
		return "", fmt.Errorf("hindcast: bad interval end: %w", err)
	}
	name := parts[0] + t.UTC().Format("200601") + parts[len(parts)-1]

	slash := strings.LastIndex(rawURL, "/")
	if slash < 0 {
		return "", fmt.Errorf("hindcast: url %q has no path to rewrite", rawURL)
	}
	return rawURL[:slash+1] + name, nil
}

// parseLayerTime accepts the timestamp shapes the catalogue emits.
func parseLayerTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
