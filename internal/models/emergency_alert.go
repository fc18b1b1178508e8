package models

import (
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for alert timestamps. All
// timestamps are UTC with millisecond precision so lexical order matches
// chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// AlertStatus is the lifecycle state of an emergency alert.
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusResolved, AlertStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseAlertStatus converts raw input into an AlertStatus.
func ParseAlertStatus(raw string) (AlertStatus, bool) {
	status := AlertStatus(strings.TrimSpace(raw))
	return status, status.Valid()
}

// Location is the position captured when the alert was raised.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// MedicalInfo is a snapshot of the elderly user's medical profile.
type MedicalInfo struct {
	BloodType          string `json:"bloodType,omitempty"`
	Allergies          string `json:"allergies,omitempty"`
	MedicalConditions  string `json:"medicalConditions,omitempty"`
	CurrentMedications string `json:"currentMedications,omitempty"`
}

// EmergencyAlert is a single emergency notification raised by an elderly user.
type EmergencyAlert struct {
	ID              string       `json:"id"`
	ElderlyUserID   string       `json:"elderlyUserId"`
	ElderlyName     string       `json:"elderlyName"`
	ElderlyPhone    string       `json:"elderlyPhone"`
	ElderlyEmail    string       `json:"elderlyEmail,omitempty"`
	Timestamp       string       `json:"timestamp"`
	Status          AlertStatus  `json:"status"`
	Location        *Location    `json:"location,omitempty"`
	MedicalInfo     *MedicalInfo `json:"medicalInfo,omitempty"`
	FamilyMemberIDs []string     `json:"familyMemberIds"`
	ReadBy          []string     `json:"readBy"`
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CreatedAt parses the alert timestamp. Timestamps written by other producers
// in RFC 3339 form are accepted too.
func (a *EmergencyAlert) CreatedAt() (time.Time, error) {
	ts, err := time.Parse(TimestampLayout, a.Timestamp)
	if err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, a.Timestamp)
}

// IsRecipient reports whether familyMemberID received this alert.
func (a *EmergencyAlert) IsRecipient(familyMemberID string) bool {
	for _, id := range a.FamilyMemberIDs {
		if id == familyMemberID {
			return true
		}
	}
	return false
}

// IsReadBy reports whether familyMemberID has acknowledged the alert.
func (a *EmergencyAlert) IsReadBy(familyMemberID string) bool {
	for _, id := range a.ReadBy {
		if id == familyMemberID {
			return true
		}
	}
	return false
}

// IsActive reports whether the alert still needs attention.
func (a *EmergencyAlert) IsActive() bool {
	return a.Status == AlertStatusActive
}
