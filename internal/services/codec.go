package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charlesng35/safeguard/internal/kvstore"
	"github.com/charlesng35/safeguard/internal/models"
)

// Key namespaces inside the key-value store.
const (
	alertKeyPrefix          = "emergency_alert:"
	recipientIndexKeyPrefix = "user_alerts:"
	familyLinkKeyPrefix     = "family_link:"
	pendingFanoutKeyPrefix  = "fanout_pending:"
)

func alertKey(alertID string) string {
	return alertKeyPrefix + alertID
}

func recipientIndexKey(familyMemberID string) string {
	return recipientIndexKeyPrefix + familyMemberID
}

func familyLinkKey(elderlyUserID string) string {
	return familyLinkKeyPrefix + elderlyUserID
}

func pendingFanoutKey(alertID string) string {
	return pendingFanoutKeyPrefix + alertID
}

// normaliseAlert enforces the record invariants: slices are never nil,
// recipients are unique and readBy only holds recipients.
func normaliseAlert(alert *models.EmergencyAlert) {
	alert.FamilyMemberIDs = normaliseIDs(alert.FamilyMemberIDs)

	readBy := make([]string, 0, len(alert.ReadBy))
	for _, id := range normaliseIDs(alert.ReadBy) {
		if containsString(alert.FamilyMemberIDs, id) {
			readBy = append(readBy, id)
		}
	}
	alert.ReadBy = readBy
}

func encodeAlert(alert *models.EmergencyAlert) ([]byte, error) {
	normaliseAlert(alert)
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("encode alert %s: %w", alert.ID, err)
	}
	return data, nil
}

func decodeAlert(data []byte) (*models.EmergencyAlert, error) {
	var alert models.EmergencyAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}
	normaliseAlert(&alert)
	return &alert, nil
}

func encodeIDList(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode id list: %w", err)
	}
	return data, nil
}

func decodeIDList(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// loadIDList reads a JSON id list, returning an empty list when the key is absent.
func loadIDList(ctx context.Context, store kvstore.Store, key string) ([]string, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return []string{}, nil
	}
	ids, err := decodeIDList(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return ids, nil
}

func saveIDList(ctx context.Context, store kvstore.Store, key string, ids []string) error {
	data, err := encodeIDList(ids)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
