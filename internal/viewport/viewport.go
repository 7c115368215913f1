// Package viewport keeps the store and the map surface agreeing on the
// camera. Programmatic moves wait for the surface to be ready, and user
// moves are read back into the store after each gesture settles.
package viewport

import (
	"context"
	"log/slog"
	"time"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/mapsurface"
	"github.com/oceanportal/workbench/internal/store"
)

type Synchronizer struct {
	logger      *slog.Logger
	store       *store.Store
	sess        *mapsurface.Session
	maxAttempts int
	epsilon     float64

	// delayFor spaces readiness retries. Swappable in tests.
	delayFor func(attempt int) time.Duration

	detachMove func()
}

func New(logger *slog.Logger, st *store.Store, sess *mapsurface.Session, maxAttempts int, boundsEpsilonDeg float64) *Synchronizer {
	if maxAttempts <= 0 {
		maxAttempts = 15
	}
	return &Synchronizer{
		logger:      logger,
		store:       st,
		sess:        sess,
		maxAttempts: maxAttempts,
		epsilon:     boundsEpsilonDeg,
		delayFor: func(attempt int) time.Duration {
			return time.Duration(100+40*attempt) * time.Millisecond
		},
	}
}

// Start wires the read-back path: every settled user move lands in the
// store so saved workbenches capture the viewport the user actually sees.
func (s *Synchronizer) Start(ctx context.Context) {
	s.detachMove = s.sess.OnMoveEnd(func(v model.Viewport) {
		s.store.SetViewport(v)
	})
	go func() {
		<-ctx.Done()
		if s.detachMove != nil {
			s.detachMove()
		}
	}()
}

// RequestFit fits the surface to a layer extent, unless the session already
// pinned explicit bounds; an explicit region choice beats layer activation.
func (s *Synchronizer) RequestFit(b model.Bounds) {
	if s.store.Viewport().Bounds != nil {
		return
	}
	s.whenReady("fit-extent", func() { s.sess.FitBounds(b) })
}

// ApplyBounds moves the surface to explicitly requested bounds, skipping
// the move when the surface is already materially there. Sub-epsilon
// differences are render jitter, not intent.
func (s *Synchronizer) ApplyBounds(b model.Bounds) {
	s.store.SetBounds(b)
	if !b.DiffersFrom(s.sess.Bounds(), s.epsilon) {
		return
	}
	s.whenReady("apply-bounds", func() { s.sess.FitBounds(b) })
}

// ApplyView recentres the surface on a stored viewport.
func (s *Synchronizer) ApplyView(v model.Viewport) {
	s.store.SetViewport(v)
	if v.Bounds != nil {
		if v.Bounds.DiffersFrom(s.sess.Bounds(), s.epsilon) {
			b := *v.Bounds
			s.whenReady("apply-view", func() { s.sess.FitBounds(b) })
		}
		return
	}
	s.whenReady("apply-view", func() { s.sess.SetView(v.Center, v.Zoom) })
}

// whenReady runs op once the surface can be moved safely: loaded, not mid
// animation, visible and with a real size. The surface reaches readiness
// asynchronously during startup, so the op is retried on a widening
// schedule and dropped if the surface never settles.
func (s *Synchronizer) whenReady(name string, op func()) {
	go func() {
		for attempt := 0; attempt < s.maxAttempts; attempt++ {
			if s.sess.Ready() {
				op()
				return
			}
			time.Sleep(s.delayFor(attempt))
		}
		s.logger.Warn("viewport op dropped, surface never became ready",
			"op", name, "attempts", s.maxAttempts)
	}()
}
