// Package store persists bot state as flat JSON files, one file per concern.
// Files are overwritten whole on every save; there is deliberately no
// database behind this bot.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/avolkov/quotabot/internal/quota"
)

const (
	settingsFile = "settings.json"
	vipFile      = "vip_users.json"
	userDataFile = "user_data.json"
)

// Files implements quota.Store on top of a data directory.
type Files struct {
	dir string
}

// New creates the data directory if needed and returns a file-backed store.
func New(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Files{dir: dir}, nil
}

func (f *Files) path(name string) string {
	return filepath.Join(f.dir, name)
}

// LoadSettings reads the persisted daily limit. A missing file is an error so
// the caller can fall back to the default and write it out.
func (f *Files) LoadSettings() (quota.Settings, error) {
	data, err := os.ReadFile(f.path(settingsFile))
	if err != nil {
		return quota.Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	var settings quota.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return quota.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return settings, nil
}

func (f *Files) SaveSettings(settings quota.Settings) error {
	return f.write(settingsFile, settings)
}

// LoadVIPs reads the VIP user IDs, preserving file order. A missing file
// means no VIPs.
func (f *Files) LoadVIPs() ([]int64, error) {
	data, err := os.ReadFile(f.path(vipFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading vip users: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parsing vip users: %w", err)
	}
	return ids, nil
}

func (f *Files) SaveVIPs(ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	return f.write(vipFile, ids)
}

// LoadRecords reads per-user counters. User IDs are stored as string keys in
// the JSON object; entries with unparseable keys are skipped.
func (f *Files) LoadRecords() (map[int64]quota.Record, error) {
	data, err := os.ReadFile(f.path(userDataFile))
	if os.IsNotExist(err) {
		return map[int64]quota.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user data: %w", err)
	}
	var raw map[string]quota.Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing user data: %w", err)
	}
	records := make(map[int64]quota.Record, len(raw))
	for key, rec := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		records[id] = rec
	}
	return records, nil
}

func (f *Files) SaveRecords(records map[int64]quota.Record) error {
	raw := make(map[string]quota.Record, len(records))
	for id, rec := range records {
		raw[strconv.FormatInt(id, 10)] = rec
	}
	return f.write(userDataFile, raw)
}

func (f *Files) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := os.WriteFile(f.path(name), data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
