// Package router implements the portal HTTP API: map layer state, viewport
// control, authentication and workbench persistence.
package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oceanportal/workbench/internal/adapter/raster"
	"github.com/oceanportal/workbench/internal/adapter/vector"
	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/mapsurface"
	"github.com/oceanportal/workbench/internal/portal"
	"github.com/oceanportal/workbench/internal/prefs"
	"github.com/oceanportal/workbench/internal/session"
	"github.com/oceanportal/workbench/internal/store"
	"github.com/oceanportal/workbench/internal/viewport"
)

// API bundles the handler dependencies. Prefs is optional: without Redis
// the preference endpoints answer 503 and everything else works.
type API struct {
	Logger   *slog.Logger
	Store    *store.Store
	Surface  *mapsurface.Session
	View     *viewport.Synchronizer
	Vectors  *vector.Adapter
	Portal   *portal.Client
	Sessions *session.Manager
	Prefs    *prefs.Store
	Notices  *Notices
}

func (a *API) Routes(r chi.Router) {
	r.Post("/api/login", a.handleLogin)
	r.Post("/api/logout", a.handleLogout)
	r.Get("/api/session", a.handleSession)
	r.Get("/api/countries", a.handleCountries)
	r.Get("/api/widgets", a.handleWidgets)

	r.Get("/api/layers", a.handleListLayers)
	r.Post("/api/layers", a.handleAddLayer)
	r.Delete("/api/layers", a.handleClearLayers)
	r.Put("/api/layers/{id}", a.handleUpdateLayer)
	r.Delete("/api/layers/{id}", a.handleRemoveLayer)
	r.Put("/api/layers/{id}/enabled", a.handleSetEnabled)
	r.Get("/api/layers/{id}/selection", a.handleSelection)

	r.Get("/api/renderers", a.handleRenderers)
	r.Get("/api/viewport", a.handleGetViewport)
	r.Put("/api/viewport", a.handleSetViewport)
	r.Put("/api/bounds", a.handleSetBounds)
	r.Post("/api/click", a.handleClick)
	r.Post("/api/markers/click", a.handleMarkerClick)
	r.Post("/api/tiles/error", a.handleTileError)
	r.Get("/api/export", a.handleExport)
	r.Get("/api/notices", a.handleNotices)

	r.Get("/api/basemap", a.handleGetBaseMap)
	r.Put("/api/basemap", a.handleSetBaseMap)
	r.Get("/api/overlays", a.handleGetOverlays)
	r.Put("/api/overlays", a.handleSetOverlays)

	r.Get("/api/workbenches", a.handleListWorkbenches)
	r.Put("/api/workbenches/{name}", a.handleSaveWorkbench)
	r.Post("/api/workbenches/{name}/restore", a.handleRestoreWorkbench)
	r.Delete("/api/workbenches/{name}", a.handleDeleteWorkbench)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	token, err := a.Portal.Token(r.Context(), req.Username, req.Password)
	if err != nil {
		a.Logger.Warn("login failed", "username", req.Username, "err", err)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	acct, err := a.Portal.Account(r.Context(), token)
	if err != nil {
		http.Error(w, "account lookup failed", http.StatusBadGateway)
		return
	}
	if err := a.Sessions.Issue(w, session.Data{CountryID: acct.CountryID, UserID: acct.ID}); err != nil {
		http.Error(w, "session issue failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct, "token": token})
}

func (a *API) handleLogout(w http.ResponseWriter, _ *http.Request) {
	a.Sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	d, err := a.Sessions.Verify(r)
	if err != nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleCountries(w http.ResponseWriter, r *http.Request) {
	cs, err := a.Portal.Countries(r.Context())
	if err != nil {
		http.Error(w, "catalogue unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (a *API) handleWidgets(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "bearer token required", http.StatusUnauthorized)
		return
	}
	countryID := 0
	if d, err := a.Sessions.Verify(r); err == nil {
		countryID = d.CountryID
	}
	ws, err := a.Portal.Widgets(r.Context(), token, countryID)
	if err != nil {
		http.Error(w, "catalogue unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (a *API) handleListLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.Layers())
}

// handleAddLayer accepts either a full descriptor or just {"id": "..."}; the
// bare form pulls the definition from the catalogue.
func (a *API) handleAddLayer(w http.ResponseWriter, r *http.Request) {
	var d model.LayerDescriptor
	if !readJSON(w, r, &d) {
		return
	}
	if d.URL == "" && d.ID != "" {
		fetched, err := a.Portal.Layer(r.Context(), d.ID)
		if err != nil {
			http.Error(w, "layer not found in catalogue", http.StatusBadGateway)
			return
		}
		fetched.Enabled = true
		d = fetched
	}
	if err := a.Store.Add(d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) handleUpdateLayer(w http.ResponseWriter, r *http.Request) {
	var d model.LayerDescriptor
	if !readJSON(w, r, &d) {
		return
	}
	d.ID = chi.URLParam(r, "id")
	if err := a.Store.Update(d); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleRemoveLayer(w http.ResponseWriter, r *http.Request) {
	if !a.Store.Remove(chi.URLParam(r, "id")) {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearLayers(w http.ResponseWriter, _ *http.Request) {
	a.Store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if !a.Store.SetEnabled(chi.URLParam(r, "id"), req.Enabled) {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSelection(w http.ResponseWriter, r *http.Request) {
	sel, ok := a.Store.Selection(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "no selection for layer", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

func (a *API) handleRenderers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Surface.Renderers())
}

func (a *API) handleGetViewport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Surface.Viewport())
}

func (a *API) handleSetViewport(w http.ResponseWriter, r *http.Request) {
	var v model.Viewport
	if !readJSON(w, r, &v) {
		return
	}
	a.View.ApplyView(v)
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleSetBounds(w http.ResponseWriter, r *http.Request) {
	var b model.Bounds
	if !readJSON(w, r, &b) {
		return
	}
	if b.North <= b.South {
		http.Error(w, "bounds must satisfy north>south", http.StatusBadRequest)
		return
	}
	a.View.ApplyBounds(b)
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleClick(w http.ResponseWriter, r *http.Request) {
	var ll model.LatLng
	if !readJSON(w, r, &ll) {
		return
	}
	a.Surface.Click(ll)
	writeJSON(w, http.StatusAccepted, map[string]any{"notices": a.Notices.Drain()})
}

// handleMarkerClick resolves a click on a station marker into the
// coordinate selection the detail panel reads. Cluster badges carry no
// station id and so are not addressable here.
func (a *API) handleMarkerClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LayerID string `json:"layer_id"`
		Station string `json:"station"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	d, ok := a.Store.Get(req.LayerID)
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	for _, rd := range a.Surface.RenderersByLayerID(req.LayerID) {
		for _, m := range rd.Markers {
			if m.Station != req.Station {
				continue
			}
			if !a.Vectors.Select(d, m, a.Store) {
				http.Error(w, "cluster markers are not selectable", http.StatusConflict)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, "unknown station", http.StatusNotFound)
}

// handleTileError lets the rendering client report a tile url that failed
// to load; the owning renderer probes and retries it in the background.
func (a *API) handleTileError(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key int    `json:"key"`
		URL string `json:"url"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	if !a.Surface.ReportTileError(req.Key, req.URL) {
		http.Error(w, "unknown renderer", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleExport returns one GetMap snapshot url per visible WMS raster at
// the current viewport, for composing a static image of the view.
func (a *API) handleExport(w http.ResponseWriter, _ *http.Request) {
	b := a.Surface.Bounds()
	width, height := a.Surface.Size()
	type exportURL struct {
		LayerID string `json:"layer_id"`
		URL     string `json:"url"`
	}
	out := []exportURL{}
	for _, rd := range a.Surface.VisibleRasters() {
		if rd.Kind != "wms" {
			continue
		}
		out = append(out, exportURL{LayerID: rd.LayerID, URL: raster.GetMapURL(rd, b, width, height)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleNotices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Notices.Drain())
}

func (a *API) handleGetBaseMap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.BaseMap())
}

func (a *API) handleSetBaseMap(w http.ResponseWriter, r *http.Request) {
	var b model.BaseMap
	if !readJSON(w, r, &b) {
		return
	}
	if b.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	a.Store.SetBaseMap(b)
	if a.Prefs != nil {
		if d, err := a.Sessions.Verify(r); err == nil {
			if err := a.Prefs.SaveBaseMap(r.Context(), d.UserID, b); err != nil {
				a.Logger.Warn("basemap preference save failed", "err", err)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetOverlays(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.Overlays())
}

func (a *API) handleSetOverlays(w http.ResponseWriter, r *http.Request) {
	var o store.Overlays
	if !readJSON(w, r, &o) {
		return
	}
	a.Store.SetOverlays(o)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListWorkbenches(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	names, err := a.Prefs.ListWorkbenches(r.Context(), user)
	if err != nil {
		http.Error(w, "preference store unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *API) handleSaveWorkbench(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	wb := prefs.Workbench{
		Name:     chi.URLParam(r, "name"),
		SavedAt:  time.Now().UTC(),
		Snapshot: a.Store.SnapshotState(),
		Viewport: a.Surface.Viewport(),
		BaseMap:  a.Store.BaseMap(),
		Overlays: a.Store.Overlays(),
	}
	if err := a.Prefs.SaveWorkbench(r.Context(), user, wb); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": wb.Name})
}

// handleRestoreWorkbench reloads a saved state wholesale: layers, base map,
// overlays and the viewport the save was taken at.
func (a *API) handleRestoreWorkbench(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	wb, found, err := a.Prefs.LoadWorkbench(r.Context(), user, name)
	if err != nil {
		http.Error(w, "preference store unavailable", http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, "unknown workbench", http.StatusNotFound)
		return
	}
	if err := a.Store.Restore(wb.Snapshot); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if wb.BaseMap.URL != "" {
		a.Store.SetBaseMap(wb.BaseMap)
	}
	a.Store.SetOverlays(wb.Overlays)
	a.View.ApplyView(wb.Viewport)
	writeJSON(w, http.StatusOK, wb)
}

func (a *API) handleDeleteWorkbench(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	if err := a.Prefs.DeleteWorkbench(r.Context(), user, chi.URLParam(r, "name")); err != nil {
		http.Error(w, "preference store unavailable", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if a.Prefs == nil {
		http.Error(w, "preference store not configured", http.StatusServiceUnavailable)
		return "", false
	}
	d, err := a.Sessions.Verify(r)
	if err != nil {
		http.Error(w, "login required", http.StatusUnauthorized)
		return "", false
	}
	return d.UserID, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func readJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
