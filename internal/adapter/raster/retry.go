package raster

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oceanportal/workbench/internal/core/observability"
)

// TileRetrier recovers individual tiles that fail mid-session, typically
// because a THREDDS aggregation is being rebuilt. A cheap existence probe
// decides whether the tile is worth retrying at all; tiles for genuinely
// absent data are dropped without noise.
type TileRetrier struct {
	probe  *http.Client
	limit  int
	delay  time.Duration
	logger *slog.Logger

	// fetch re-requests the tile body. Swappable in tests.
	fetch func(url string) error

	stopOnce sync.Once
	stop     chan struct{}
}

func (a *Adapter) newRetrier() *TileRetrier {
	t := &TileRetrier{
		probe:  a.probe,
		limit:  a.retryLimit,
		delay:  a.retryDelay,
		logger: a.logger,
		stop:   make(chan struct{}),
	}
	t.fetch = t.httpFetch
	return t
}

// OnTileError kicks off probe-then-retry for one failed tile url. It never
// blocks the caller and never surfaces an error: a tile that stays broken
// after the retry budget is simply left missing.
func (t *TileRetrier) OnTileError(tileURL string) {
	go t.run(tileURL)
}

// Stop cancels all in-flight retry schedules. Wired as the renderer
// teardown so layer removal kills pending retries immediately.
func (t *TileRetrier) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *TileRetrier) run(tileURL string) {
	if !t.reachable(tileURL) {
		observability.ObserveTileRetry("unreachable")
		return
	}
	for attempt := 1; attempt <= t.limit; attempt++ {
		select {
		case <-t.stop:
			return
		case <-time.After(t.delay):
		}
		if err := t.fetch(tileURL); err == nil {
			observability.ObserveTileRetry("recovered")
			return
		}
		observability.ObserveTileRetry("retry")
	}
	observability.ObserveTileRetry("exhausted")
	t.logger.Debug("tile retries exhausted", "url", tileURL, "attempts", t.limit)
}

// reachable asks the server whether the resource exists without pulling the
// body. Any transport failure or non-2xx counts as unreachable.
func (t *TileRetrier) reachable(tileURL string) bool {
	req, err := http.NewRequest(http.MethodHead, tileURL, nil)
	if err != nil {
		return false
	}
	resp, err := t.probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (t *TileRetrier) httpFetch(tileURL string) error {
	resp, err := t.probe.Get(tileURL)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &statusError{status: resp.StatusCode}
	}
	return nil
}

type statusError struct{ status int }

func (e *statusError) Error() string { return http.StatusText(e.status) }
