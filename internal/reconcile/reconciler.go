// Package reconcile drives the map surface toward the layer store's desired
// state. It is the only writer of dataset renderers: adapters build them,
// the reconciler decides when they attach, replace and detach.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/oceanportal/workbench/internal/adapter/raster"
	"github.com/oceanportal/workbench/internal/adapter/vector"
	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/core/observability"
	"github.com/oceanportal/workbench/internal/mapsurface"
	"github.com/oceanportal/workbench/internal/store"
)

// Static overlay bands sit directly above the dataset rasters at 400 and
// below the markers at 600.
const (
	OverlayEEZ       = "eez"
	OverlayCoastline = "coastline"
	OverlayPlaceName = "pacnames"

	zIndexEEZ       = 401
	zIndexCoastline = 402
	zIndexPlaceName = 403
)

// Fitter receives one-shot fit-bounds requests for layers flagged to zoom
// on activation.
type Fitter interface {
	RequestFit(b model.Bounds)
}

// OverlayURLs points the three static overlays at their tile sources.
type OverlayURLs struct {
	EEZ       string
	Coastline string
	PlaceName string
}

type Reconciler struct {
	logger  *slog.Logger
	store   *store.Store
	sess    *mapsurface.Session
	rasters *raster.Adapter
	vectors *vector.Adapter
	fitter  Fitter
	urls    OverlayURLs

	// OnPopup and OnWarning surface feature-info results and soft failures.
	// Both are optional.
	OnPopup   func(raster.Popup)
	OnWarning func(msg string)

	sigs        map[string]uint64
	zoomed      map[string]bool
	lastZoom    int
	detachClick func()
}

func New(logger *slog.Logger, st *store.Store, sess *mapsurface.Session,
	ra *raster.Adapter, va *vector.Adapter, fitter Fitter, urls OverlayURLs) *Reconciler {
	return &Reconciler{
		logger:   logger,
		store:    st,
		sess:     sess,
		rasters:  ra,
		vectors:  va,
		fitter:   fitter,
		urls:     urls,
		sigs:     map[string]uint64{},
		zoomed:   map[string]bool{},
		lastZoom: -1,
	}
}

// Run reconciles once immediately, then again on every store change until
// the context ends.
func (r *Reconciler) Run(ctx context.Context) {
	sub := r.store.Subscribe()
	r.Sync(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub:
			r.Sync(ctx)
		}
	}
}

// Sync performs one reconciliation pass. Renderer identity is the layer
// signature: an unchanged signature leaves the renderer untouched, any
// change replaces it wholesale rather than patching parameters in place.
func (r *Reconciler) Sync(ctx context.Context) {
	layers := r.store.Layers()

	enabled := map[string]struct{}{}
	for _, d := range layers {
		if d.Enabled {
			enabled[d.ID] = struct{}{}
		}
	}

	if len(layers) == 0 && len(r.sigs) > 0 {
		r.purge()
	}

	// Removals first so a replace never has two generations attached.
	for id := range r.sigs {
		if _, ok := enabled[id]; !ok {
			r.detach(id)
		}
	}

	zoom := int(math.Floor(r.sess.Viewport().Zoom))
	rezoom := zoom != r.lastZoom
	r.lastZoom = zoom

	// Renderers stack in attach order, and feature-info queries the topmost
	// raster, so stacking must track store order. Walking the ordered slice
	// keeps fresh attaches in order; once any layer re-attaches, every
	// enabled layer after it re-attaches too so it cannot end up on top of
	// layers it belongs under.
	reflow := false
	for _, d := range layers {
		if !d.Enabled {
			continue
		}
		sig := store.Signature(d)
		prev, active := r.sigs[d.ID]
		switch {
		case !active:
			if r.attach(ctx, d) {
				r.sigs[d.ID] = sig
				observability.ObserveReconcileOp("attach")
				r.maybeZoomTo(d)
				reflow = true
			}
		case prev != sig:
			r.sess.RemoveByLayerID(d.ID)
			if r.attach(ctx, d) {
				r.sigs[d.ID] = sig
				observability.ObserveReconcileOp("replace")
			} else {
				delete(r.sigs, d.ID)
			}
			reflow = true
		case reflow || (rezoom && !d.Kind.IsRaster()):
			// Reflow restores stacking; the zoom case rebuilds vector
			// renderers because cluster membership depends on zoom.
			r.sess.RemoveByLayerID(d.ID)
			if !r.attach(ctx, d) {
				delete(r.sigs, d.ID)
			}
		}
	}

	r.syncBaseMap()
	r.syncOverlays()
	r.syncClickHandler(ctx)
	observability.SetRenderersActive(r.sess.Count())
}

func (r *Reconciler) attach(ctx context.Context, d model.LayerDescriptor) bool {
	if d.Kind.IsRaster() {
		renderers, err := r.rasters.Build(d)
		if err != nil {
			r.warn("layer could not be rendered: " + err.Error())
			r.logger.Warn("raster attach failed", "layer_id", d.ID, "err", err)
			return false
		}
		for _, rd := range renderers {
			r.sess.Attach(rd)
		}
		return true
	}

	rd, err := r.vectors.Build(ctx, d, r.sess.Viewport().Zoom)
	if err != nil {
		if errors.Is(err, vector.ErrStale) {
			return false
		}
		r.warn("station feed unavailable: " + err.Error())
		r.logger.Warn("vector attach failed", "layer_id", d.ID, "err", err)
		return false
	}
	r.sess.Attach(rd)
	return true
}

func (r *Reconciler) detach(id string) {
	r.sess.RemoveByLayerID(id)
	r.vectors.Forget(id)
	delete(r.sigs, id)
	delete(r.zoomed, id)
	observability.ObserveReconcileOp("remove")
}

// purge clears every dataset renderer in one sweep while leaving the base
// map and the static overlays in place.
func (r *Reconciler) purge() {
	r.sess.RemoveWhere(func(rd *mapsurface.Renderer) bool {
		return !rd.IsBaseMap && rd.OverlayID == ""
	})
	for id := range r.sigs {
		r.vectors.Forget(id)
	}
	r.sigs = map[string]uint64{}
	r.zoomed = map[string]bool{}
	observability.ObserveReconcileOp("purge")
}

// maybeZoomTo fires the one-shot activation fit. A workbench restore resets
// the flag before layers reach the store, so restored sessions keep their
// saved viewport instead of jumping to the last layer's extent.
func (r *Reconciler) maybeZoomTo(d model.LayerDescriptor) {
	if !d.ZoomToLayer || r.zoomed[d.ID] || r.fitter == nil {
		return
	}
	b, ok := d.Extent()
	if !ok {
		return
	}
	r.zoomed[d.ID] = true
	r.fitter.RequestFit(b)
}

// syncBaseMap swaps the base renderer when the stored choice changes. Only
// base renderers are touched, so a swap mid-session never disturbs dataset
// layers.
func (r *Reconciler) syncBaseMap() {
	want := r.store.BaseMap()
	if want.URL == "" {
		return
	}
	for _, rd := range r.sess.Renderers() {
		if rd.IsBaseMap {
			if rd.URL == want.URL {
				return
			}
			break
		}
	}
	r.sess.RemoveWhere(func(rd *mapsurface.Renderer) bool { return rd.IsBaseMap })
	r.sess.Attach(mapsurface.Renderer{
		IsBaseMap: true,
		Kind:      "tile",
		URL:       want.URL,
		ZIndex:    0,
		Params:    map[string]string{"attribution": want.Attribution},
	})
	observability.ObserveReconcileOp("basemap")
}

func (r *Reconciler) syncOverlays() {
	want := r.store.Overlays()
	r.syncOverlay(OverlayEEZ, want.EEZ, r.urls.EEZ, zIndexEEZ)
	r.syncOverlay(OverlayCoastline, want.Coastline, r.urls.Coastline, zIndexCoastline)
	r.syncOverlay(OverlayPlaceName, want.PlaceNames, r.urls.PlaceName, zIndexPlaceName)
}

func (r *Reconciler) syncOverlay(id string, enabled bool, url string, z int) {
	if url == "" {
		return
	}
	present := false
	for _, rd := range r.sess.Renderers() {
		if rd.OverlayID == id {
			present = true
			break
		}
	}
	switch {
	case enabled && !present:
		r.sess.Attach(mapsurface.Renderer{OverlayID: id, Kind: "tile", URL: url, ZIndex: z})
	case !enabled && present:
		r.sess.RemoveWhere(func(rd *mapsurface.Renderer) bool { return rd.OverlayID == id })
	}
}

// syncClickHandler keeps exactly one feature-info click subscription alive
// while any queryable raster is attached, and none otherwise. The handler
// is shared across rasters; target choice happens per click.
func (r *Reconciler) syncClickHandler(ctx context.Context) {
	active := len(r.sess.VisibleRasters()) > 0
	switch {
	case active && r.detachClick == nil:
		r.detachClick = r.sess.OnClick(func(ev mapsurface.ClickEvent) {
			r.handleClick(ctx, ev)
		})
	case !active && r.detachClick != nil:
		r.detachClick()
		r.detachClick = nil
	}
}

func (r *Reconciler) handleClick(ctx context.Context, ev mapsurface.ClickEvent) {
	p, err := r.rasters.FeatureInfo(ctx, r.sess, ev)
	if err != nil {
		if errors.Is(err, raster.ErrNoFeatureInfo) {
			r.warn("no data at the clicked location")
		} else {
			r.warn("feature query failed")
			r.logger.Warn("feature info failed", "err", err)
		}
		return
	}
	if target, ok := r.store.Get(p.LayerID); ok {
		sx, sy := r.sess.Size()
		r.store.SetSelection(model.CoordinateSelection{
			LayerID: target.ID,
			X:       ev.X, Y: ev.Y,
			SizeX: sx, SizeY: sy,
			BBox: ev.BBox,
		})
	}
	if r.OnPopup != nil {
		r.OnPopup(p)
	}
}

func (r *Reconciler) warn(msg string) {
	if r.OnWarning != nil {
		r.OnWarning(msg)
	}
}
