package raster

import (
	"fmt"
	"strings"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/mapsurface"
)

// buildCOG resolves the tiler url template carried in cog_params. The
// template uses {placeholder} substitution against the descriptor, so the
// catalogue can point different datasets at different tiler deployments
// without code changes.
func (a *Adapter) buildCOG(d model.LayerDescriptor) (mapsurface.Renderer, error) {
	u, err := resolveCOGTemplate(d)
	if err != nil {
		return mapsurface.Renderer{}, err
	}
	return mapsurface.Renderer{
		LayerID:   d.ID,
		Kind:      "cog",
		LayerName: d.LayerName,
		URL:       u,
		ZIndex:    datasetZIndex,
		Params: map[string]string{
			"opacity":  formatFloat(d.Opacity),
			"rescale":  formatFloat(d.ColorMin) + "," + formatFloat(d.ColorMax),
			"colormap": d.Style,
		},
	}, nil
}

func resolveCOGTemplate(d model.LayerDescriptor) (string, error) {
	tmpl := strings.TrimSpace(d.COGParams)
	if tmpl == "" {
		return "", fmt.Errorf("cog: layer %s has empty cog_params", d.ID)
	}
	repl := strings.NewReplacer(
		"{layer_id}", d.ID,
		"{url}", d.URL,
		"{variable}", d.LayerName,
		"{time}", d.DisplayTime(),
	)
	u := repl.Replace(tmpl)
	if i := strings.Index(u, "{"); i >= 0 {
		j := strings.Index(u[i:], "}")
		if j < 0 {
			j = len(u) - i - 1
		}
		return "", fmt.Errorf("cog: layer %s: unresolved placeholder %s", d.ID, u[i:i+j+1])
	}
	return u, nil
}
