package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/domain"
	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
)

func sampleItems() domain.Items {
	return domain.Items{
		"boots-1": {
			ProductID: "boots-1", SKU: "BT-1", Name: "Insulated Boots", ShortName: "Boots",
			Price: 12999, Quantity: 2, MaxQuantity: 5, FulfillmentType: domain.FulfillmentShipOrPickup,
		},
		"rifle-1": {
			ProductID: "rifle-1", SKU: "RF-1", Name: "Bolt Rifle", Price: 59999, Quantity: 1,
			MaxQuantity: 1, FulfillmentType: domain.FulfillmentReserveHold, FFLRequired: true, AgeRestriction: 18,
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	savedAt := time.UnixMilli(1_700_000_000_123)

	data, err := Encode(sampleItems(), savedAt)
	require.NoError(t, err)

	snap, migrated, err := Decode(data, DefaultMigrator())
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.Equal(t, CurrentSchemaVersion, snap.SchemaVersion)
	assert.Equal(t, int64(1_700_000_000_123), snap.SavedAt)
	assert.Equal(t, sampleItems(), snap.Items)
}

func TestEncode_OmitsDrawerFlag(t *testing.T) {
	data, err := Encode(nil, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "isOpen")
	assert.Contains(t, string(data), `"items":{}`)
}

func TestDecode_Corrupt(t *testing.T) {
	tests := map[string]string{
		"not json":         `{"schemaVersion":1,`,
		"array":            `[1,2,3]`,
		"null":             `null`,
		"bad version":      `{"schemaVersion":"one","savedAt":1,"items":{}}`,
		"fraction version": `{"schemaVersion":1.5,"savedAt":1,"items":{}}`,
		"bad items":        `{"schemaVersion":1,"savedAt":1,"items":"boots"}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode([]byte(payload), DefaultMigrator())
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
		})
	}
}

func TestDecode_UnknownVersion(t *testing.T) {
	_, _, err := Decode([]byte(`{"schemaVersion":7,"savedAt":1,"items":{}}`), DefaultMigrator())
	assert.ErrorIs(t, err, apperrors.ErrNoMigrationPath)
}

func TestDecode_LegacyPayload(t *testing.T) {
	legacy := `{
		"items": {
			"boots-1": {"productId":"boots-1","sku":"BT-1","name":"Boots","shortName":"Boots",
				"price":12999,"priceDisplay":"$129.99","quantity":1,"maxQuantity":5,
				"image":"/img/boots.jpg","fulfillmentType":"ship_or_pickup","fflRequired":false}
		},
		"lastUpdated": "2024-05-01T12:00:00.000Z",
		"sessionId": "b0b5c7e2-0000-4000-8000-000000000000"
	}`

	snap, migrated, err := Decode([]byte(legacy), DefaultMigrator())
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Equal(t, 1, snap.SchemaVersion)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), snap.SavedAt)
	require.Contains(t, snap.Items, "boots-1")
	assert.Equal(t, "/img/boots.jpg", snap.Items["boots-1"].ImageURL)
}

func TestDecode_LegacyArrayItems(t *testing.T) {
	legacy := `{"lastUpdated":"2024-05-01T12:00:00Z","items":[
		{"productId":"a","sku":"A","name":"A","price":100,"quantity":1,"maxQuantity":2,"fulfillmentType":"pickup_only"},
		{"sku":"no-id"}
	]}`

	snap, _, err := Decode([]byte(legacy), DefaultMigrator())
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
	assert.Contains(t, snap.Items, "a")
}

func TestDecode_LegacyWithoutTimestamp(t *testing.T) {
	_, _, err := Decode([]byte(`{"items":{}}`), DefaultMigrator())
	assert.ErrorIs(t, err, apperrors.ErrNoMigrationPath)
}

func TestSnapshot_Expired(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	fresh := Snapshot{SavedAt: now.Add(-23 * time.Hour).UnixMilli()}
	stale := Snapshot{SavedAt: now.Add(-25 * time.Hour).UnixMilli()}

	assert.False(t, fresh.Expired(now, 24*time.Hour))
	assert.True(t, stale.Expired(now, 24*time.Hour))
}
