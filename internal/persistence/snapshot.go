// Package persistence mirrors the cart into a durable key/value store and
// restores it on start-up. Writes are debounced and best-effort; the in-memory
// cart never depends on them succeeding.
package persistence

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
)

// CurrentSchemaVersion is written with every snapshot.
const CurrentSchemaVersion = 1

// Snapshot is the persisted form of a cart. The drawer flag is never stored.
type Snapshot struct {
	SchemaVersion int          `json:"schemaVersion"`
	SavedAt       int64        `json:"savedAt"`
	Items         domain.Items `json:"items"`
}

// SavedTime returns SavedAt as a time.Time.
func (s Snapshot) SavedTime() time.Time {
	return time.UnixMilli(s.SavedAt)
}

// Expired reports whether the snapshot is older than maxAge at now.
func (s Snapshot) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.SavedTime()) > maxAge
}

// Encode serialises items at the current schema version.
func Encode(items domain.Items, savedAt time.Time) ([]byte, error) {
	if items == nil {
		items = domain.Items{}
	}
	data, err := json.Marshal(Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       savedAt.UnixMilli(),
		Items:         items,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored payload, upgrading older schema versions through m.
// Unparseable payloads wrap ErrCorruptSnapshot; versions with no upgrade path
// wrap ErrNoMigrationPath.
func Decode(data []byte, m *Migrator) (Snapshot, bool, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", apperrors.ErrCorruptSnapshot, err)
	}
	if doc == nil {
		return Snapshot{}, false, fmt.Errorf("%w: payload is not an object", apperrors.ErrCorruptSnapshot)
	}

	version, err := doc.Version()
	if err != nil {
		return Snapshot{}, false, err
	}

	migrated := false
	if version != m.Target() {
		doc, err = m.Migrate(doc, version)
		if err != nil {
			return Snapshot{}, false, err
		}
		migrated = true
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", apperrors.ErrCorruptSnapshot, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(normalized, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", apperrors.ErrCorruptSnapshot, err)
	}
	if snap.Items == nil {
		snap.Items = domain.Items{}
	}
	return snap, migrated, nil
}

// Document is an undecoded snapshot, the unit migration steps work on.
type Document map[string]any

// Version returns the schemaVersion field. A missing field is version 0.
func (d Document) Version() (int, error) {
	raw, ok := d["schemaVersion"]
	if !ok || raw == nil {
		return 0, nil
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) || f < 0 {
		return 0, fmt.Errorf("%w: schemaVersion %v", apperrors.ErrCorruptSnapshot, raw)
	}
	return int(f), nil
}
