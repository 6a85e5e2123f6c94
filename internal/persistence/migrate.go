package persistence

import (
	"fmt"
	"time"

	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
)

// Step upgrades a document from version v to v+1.
type Step func(Document) (Document, error)

// Migrator applies registered steps in sequence until the target version is
// reached.
type Migrator struct {
	target int
	steps  map[int]Step
}

// NewMigrator creates an empty registry targeting version target.
func NewMigrator(target int) *Migrator {
	return &Migrator{target: target, steps: make(map[int]Step)}
}

// DefaultMigrator targets CurrentSchemaVersion with every known step registered.
func DefaultMigrator() *Migrator {
	m := NewMigrator(CurrentSchemaVersion)
	m.Register(0, upgradeLegacy)
	return m
}

// Register installs the step that upgrades from version from to from+1.
func (m *Migrator) Register(from int, step Step) {
	m.steps[from] = step
}

// Target returns the version documents are upgraded to.
func (m *Migrator) Target() int {
	return m.target
}

// Migrate upgrades doc from version from. Downgrades and gaps in the table
// return ErrNoMigrationPath.
func (m *Migrator) Migrate(doc Document, from int) (Document, error) {
	if from > m.target {
		return nil, fmt.Errorf("%w: v%d is newer than v%d", apperrors.ErrNoMigrationPath, from, m.target)
	}
	for v := from; v < m.target; v++ {
		step, ok := m.steps[v]
		if !ok {
			return nil, fmt.Errorf("%w: no step from v%d", apperrors.ErrNoMigrationPath, v)
		}
		next, err := step(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: step v%d: %v", apperrors.ErrNoMigrationPath, v, err)
		}
		next["schemaVersion"] = float64(v + 1)
		doc = next
	}
	return doc, nil
}

// upgradeLegacy converts the unversioned storefront payload, which carried an
// RFC 3339 lastUpdated, a sessionId and per-line image fields, to v1.
func upgradeLegacy(doc Document) (Document, error) {
	out := Document{}

	switch ts := doc["lastUpdated"].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse lastUpdated: %w", err)
		}
		out["savedAt"] = float64(t.UnixMilli())
	default:
		if saved, ok := doc["savedAt"].(float64); ok {
			out["savedAt"] = saved
		} else {
			return nil, fmt.Errorf("legacy snapshot has no timestamp")
		}
	}

	items := map[string]any{}
	switch raw := doc["items"].(type) {
	case map[string]any:
		for id, v := range raw {
			if line, ok := v.(map[string]any); ok {
				items[id] = legacyLine(line)
			}
		}
	case []any:
		for _, v := range raw {
			line, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := line["productId"].(string); ok && id != "" {
				items[id] = legacyLine(line)
			}
		}
	case nil:
	default:
		return nil, fmt.Errorf("legacy items has type %T", raw)
	}
	out["items"] = items
	return out, nil
}

func legacyLine(line map[string]any) map[string]any {
	if img, ok := line["image"]; ok {
		if _, has := line["imageUrl"]; !has {
			line["imageUrl"] = img
		}
		delete(line, "image")
	}
	delete(line, "priceDisplay")
	return line
}
