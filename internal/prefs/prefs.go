// Package prefs persists per-user portal preferences: base-map choice,
// selected region and named workbench saves.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/redisstore"
	"github.com/oceanportal/workbench/internal/store"
)

type Store struct {
	cli       *redisstore.Client
	opTimeout time.Duration
}

func New(cli *redisstore.Client, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &Store{cli: cli, opTimeout: opTimeout}
}

// Workbench is one named save: the full layer state plus the viewport it
// was captured at.
type Workbench struct {
	Name     string         `json:"name"`
	SavedAt  time.Time      `json:"saved_at"`
	Snapshot store.Snapshot `json:"snapshot"`
	Viewport model.Viewport `json:"viewport"`
	BaseMap  model.BaseMap  `json:"basemap"`
	Overlays store.Overlays `json:"overlays"`
}

func (s *Store) SaveBaseMap(ctx context.Context, user string, b model.BaseMap) error {
	return s.put(ctx, baseMapKey(user), b)
}

func (s *Store) LoadBaseMap(ctx context.Context, user string) (model.BaseMap, bool, error) {
	var b model.BaseMap
	ok, err := s.get(ctx, baseMapKey(user), &b)
	return b, ok, err
}

func (s *Store) SaveRegion(ctx context.Context, user string, countryID int) error {
	return s.put(ctx, regionKey(user), countryID)
}

func (s *Store) LoadRegion(ctx context.Context, user string) (int, bool, error) {
	var id int
	ok, err := s.get(ctx, regionKey(user), &id)
	return id, ok, err
}

func (s *Store) SaveWorkbench(ctx context.Context, user string, w Workbench) error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("prefs: workbench name is required")
	}
	return s.put(ctx, workbenchKey(user, w.Name), w)
}

func (s *Store) LoadWorkbench(ctx context.Context, user, name string) (Workbench, bool, error) {
	var w Workbench
	ok, err := s.get(ctx, workbenchKey(user, name), &w)
	return w, ok, err
}

func (s *Store) DeleteWorkbench(ctx context.Context, user, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.cli.Del(ctx, workbenchKey(user, name))
}

// ListWorkbenches returns the save names for one user, sorted.
func (s *Store) ListWorkbenches(ctx context.Context, user string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	prefix := workbenchKey(user, "")
	ks, err := s.cli.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ks))
	for _, k := range ks {
		names = append(names, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("prefs: encode %q: %w", key, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	// Preferences are durable: no TTL.
	return s.cli.Set(ctx, key, payload, 0)
}

func (s *Store) get(ctx context.Context, key string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	raw, err := s.cli.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("prefs: decode %q: %w", key, err)
	}
	return true, nil
}

func baseMapKey(user string) string { return "prefs:" + user + ":basemap" }
func regionKey(user string) string  { return "prefs:" + user + ":region" }

func workbenchKey(user, name string) string {
	return "prefs:" + user + ":workbench:" + name
}
