package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/safeguard/internal/kvstore"
	"github.com/charlesng35/safeguard/internal/models"
	apperrors "github.com/charlesng35/safeguard/pkg/errors"
	"github.com/charlesng35/safeguard/pkg/logger"
	"github.com/charlesng35/safeguard/pkg/metrics"
)

// DefaultRetentionDays is the age after which alerts are removed by Cleanup.
const DefaultRetentionDays = 30

const (
	idSuffixLength = 9
	maxIDAttempts  = 5
	fanoutAttempts = 3
)

var (
	// ErrAlertNotFound is returned when an alert id does not resolve to a record.
	ErrAlertNotFound = apperrors.New("NOT_FOUND", "Alert not found", http.StatusNotFound)
	// ErrInvalidStatus is returned for status values outside the known set.
	ErrInvalidStatus = apperrors.NewBadRequest("Invalid status. Must be: active, resolved, or cancelled")
	// ErrMissingAlertFields is returned when create input lacks identity fields.
	ErrMissingAlertFields = apperrors.NewBadRequest("Missing required fields: elderlyUserId, elderlyName, elderlyPhone")
	// ErrMissingFamilyMember is returned when a read acknowledgement names no member.
	ErrMissingFamilyMember = apperrors.NewBadRequest("Missing familyMemberId")

	errCorruptAlert = errors.New("stored alert is not decodable")
)

// CreateAlertInput carries the snapshot taken when an elderly user raises an alert.
type CreateAlertInput struct {
	ElderlyUserID string
	ElderlyName   string
	ElderlyPhone  string
	ElderlyEmail  string
	Location      *models.Location
	MedicalInfo   *models.MedicalInfo
}

// AlertOption customises an AlertService.
type AlertOption func(*AlertService)

// WithClock overrides the time source used for timestamps and retention.
func WithClock(now func() time.Time) AlertOption {
	return func(s *AlertService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(fn func(time.Time) string) AlertOption {
	return func(s *AlertService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithFanoutJournal enables the pending fan-out marker written before
// recipient indexes are updated. Incomplete fan-outs are then reported as
// pending instead of failing the create, and RecoverPendingFanouts completes them.
func WithFanoutJournal(enabled bool) AlertOption {
	return func(s *AlertService) {
		s.journal = enabled
	}
}

// WithAlertLogger overrides the service logger.
func WithAlertLogger(log *zap.Logger) AlertOption {
	return func(s *AlertService) {
		if log != nil {
			s.log = log
		}
	}
}

// AlertService stores emergency alerts, fans them out to linked family
// members and answers recipient queries. Operations are not atomic across
// keys.
type AlertService struct {
	store   kvstore.Store
	links   *FamilyLinkService
	now     func() time.Time
	newID   func(time.Time) string
	journal bool
	log     *zap.Logger
}

// NewAlertService constructs an AlertService.
func NewAlertService(store kvstore.Store, links *FamilyLinkService, opts ...AlertOption) (*AlertService, error) {
	if store == nil {
		return nil, errors.New("alert service: store is required")
	}
	if links == nil {
		return nil, errors.New("alert service: family link service is required")
	}

	svc := &AlertService{
		store: store,
		links: links,
		now:   time.Now,
		newID: defaultAlertID,
		log:   logger.WithModule("alerts"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// JournalEnabled reports whether pending fan-out markers are written.
func (s *AlertService) JournalEnabled() bool {
	return s.journal
}

// Create stores a new active alert and prepends its id to the index of every
// family member linked at this instant.
func (s *AlertService) Create(ctx context.Context, input CreateAlertInput) (*models.EmergencyAlert, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.ElderlyUserID)
	name := strings.TrimSpace(input.ElderlyName)
	phone := strings.TrimSpace(input.ElderlyPhone)
	if userID == "" || name == "" || phone == "" {
		return nil, ErrMissingAlertFields
	}

	recipients, err := s.links.ListFamilyMembers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("alert service: resolve recipients: %w", err)
	}

	now := s.now().UTC()
	alertID, err := s.allocateID(ctx, now)
	if err != nil {
		return nil, err
	}

	alert := &models.EmergencyAlert{
		ID:              alertID,
		ElderlyUserID:   userID,
		ElderlyName:     name,
		ElderlyPhone:    phone,
		ElderlyEmail:    strings.TrimSpace(input.ElderlyEmail),
		Timestamp:       models.FormatTimestamp(now),
		Status:          models.AlertStatusActive,
		Location:        input.Location,
		MedicalInfo:     input.MedicalInfo,
		FamilyMemberIDs: recipients,
		ReadBy:          []string{},
	}

	if err := s.save(ctx, alert); err != nil {
		return nil, fmt.Errorf("alert service: store alert: %w", err)
	}
	metrics.AlertsCreated.Inc()

	if err := s.fanout(ctx, alert); err != nil {
		return nil, err
	}

	s.log.Info("emergency alert created",
		zap.String("alert_id", alert.ID),
		zap.String("elderly_user_id", alert.ElderlyUserID),
		zap.Int("recipients", len(alert.FamilyMemberIDs)),
	)
	return alert, nil
}

func (s *AlertService) fanout(ctx context.Context, alert *models.EmergencyAlert) error {
	if len(alert.FamilyMemberIDs) == 0 {
		return nil
	}

	if s.journal {
		if err := saveIDList(ctx, s.store, pendingFanoutKey(alert.ID), alert.FamilyMemberIDs); err != nil {
			return fmt.Errorf("alert service: write pending fan-out: %w", err)
		}
	}

	var errs error
	for _, recipient := range alert.FamilyMemberIDs {
		if err := s.indexWithRetry(ctx, recipient, alert.ID); err != nil {
			metrics.FanoutFailures.Inc()
			s.log.Error("fan-out to recipient failed",
				zap.String("alert_id", alert.ID),
				zap.String("family_member_id", recipient),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		if s.journal {
			s.log.Warn("fan-out incomplete, left pending for recovery", zap.String("alert_id", alert.ID))
			return nil
		}
		return fmt.Errorf("alert service: fan-out: %w", errs)
	}

	if s.journal {
		if err := s.store.Delete(ctx, pendingFanoutKey(alert.ID)); err != nil {
			s.log.Warn("clear pending fan-out failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *AlertService) indexWithRetry(ctx context.Context, recipient, alertID string) error {
	var err error
	for attempt := 0; attempt < fanoutAttempts; attempt++ {
		if err = s.prependToIndex(ctx, recipient, alertID); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// prependToIndex is safe to repeat: an id already present is not added again.
func (s *AlertService) prependToIndex(ctx context.Context, recipient, alertID string) error {
	key := recipientIndexKey(recipient)
	ids, err := loadIDList(ctx, s.store, key)
	if err != nil {
		return err
	}
	if containsString(ids, alertID) {
		return nil
	}
	return saveIDList(ctx, s.store, key, prependString(ids, alertID))
}

// Get returns a single alert.
func (s *AlertService) Get(ctx context.Context, alertID string) (*models.EmergencyAlert, error) {
	ctx = ensureContext(ctx)
	alert, ok, err := s.lookup(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// ListForRecipient returns the alerts indexed for familyMemberID, newest
// first. Ids whose alert no longer exists are skipped.
func (s *AlertService) ListForRecipient(ctx context.Context, familyMemberID string) ([]*models.EmergencyAlert, error) {
	ctx = ensureContext(ctx)
	familyMemberID = strings.TrimSpace(familyMemberID)
	alerts := make([]*models.EmergencyAlert, 0)
	if familyMemberID == "" {
		return alerts, nil
	}

	ids, err := loadIDList(ctx, s.store, recipientIndexKey(familyMemberID))
	if err != nil {
		return nil, fmt.Errorf("alert service: %w", err)
	}

	for _, id := range ids {
		alert, ok, err := s.lookup(ctx, id)
		if errors.Is(err, errCorruptAlert) {
			s.log.Warn("skipping unreadable alert", zap.String("alert_id", id), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// ListActiveForRecipient returns the recipient's alerts that are still active.
func (s *AlertService) ListActiveForRecipient(ctx context.Context, familyMemberID string) ([]*models.EmergencyAlert, error) {
	alerts, err := s.ListForRecipient(ctx, familyMemberID)
	if err != nil {
		return nil, err
	}

	active := make([]*models.EmergencyAlert, 0, len(alerts))
	for _, alert := range alerts {
		if alert.IsActive() {
			active = append(active, alert)
		}
	}
	return active, nil
}

// CountUnreadForRecipient counts active alerts not yet acknowledged by familyMemberID.
func (s *AlertService) CountUnreadForRecipient(ctx context.Context, familyMemberID string) (int, error) {
	familyMemberID = strings.TrimSpace(familyMemberID)
	active, err := s.ListActiveForRecipient(ctx, familyMemberID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, alert := range active {
		if !alert.IsReadBy(familyMemberID) {
			count++
		}
	}
	return count, nil
}

// UpdateStatus overwrites the alert status. Any transition is allowed.
func (s *AlertService) UpdateStatus(ctx context.Context, alertID string, status models.AlertStatus) (*models.EmergencyAlert, error) {
	ctx = ensureContext(ctx)
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	alert, err := s.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	previous := alert.Status
	alert.Status = status
	if err := s.save(ctx, alert); err != nil {
		return nil, fmt.Errorf("alert service: update status: %w", err)
	}

	metrics.StatusUpdates.WithLabelValues(string(status)).Inc()
	s.log.Info("alert status updated",
		zap.String("alert_id", alert.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	return alert, nil
}

// MarkRead records that familyMemberID acknowledged the alert. Repeated
// calls and calls from members who did not receive the alert leave it
// unchanged.
func (s *AlertService) MarkRead(ctx context.Context, alertID, familyMemberID string) (*models.EmergencyAlert, error) {
	ctx = ensureContext(ctx)
	familyMemberID = strings.TrimSpace(familyMemberID)
	if familyMemberID == "" {
		return nil, ErrMissingFamilyMember
	}

	alert, err := s.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.IsReadBy(familyMemberID) {
		return alert, nil
	}
	if !alert.IsRecipient(familyMemberID) {
		s.log.Debug("ignoring read acknowledgement from non-recipient",
			zap.String("alert_id", alert.ID),
			zap.String("family_member_id", familyMemberID),
		)
		return alert, nil
	}

	alert.ReadBy = append(alert.ReadBy, familyMemberID)
	if err := s.save(ctx, alert); err != nil {
		return nil, fmt.Errorf("alert service: mark read: %w", err)
	}

	metrics.ReadAcknowledgements.Inc()
	return alert, nil
}

// Cleanup deletes every alert whose timestamp is older than retentionDays,
// regardless of status, and returns how many were removed. A non-positive
// value selects DefaultRetentionDays. Recipient indexes are left untouched.
func (s *AlertService) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	ctx = ensureContext(ctx)
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	entries, err := s.store.ScanPrefix(ctx, alertKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("alert service: scan alerts: %w", err)
	}

	deleted := 0
	var errs error
	for _, entry := range entries {
		alert, err := decodeAlert(entry.Value)
		if err != nil {
			s.log.Warn("cleanup skipping undecodable alert", zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		createdAt, err := alert.CreatedAt()
		if err != nil {
			s.log.Warn("cleanup skipping alert with invalid timestamp",
				zap.String("key", entry.Key),
				zap.String("timestamp", alert.Timestamp),
			)
			continue
		}
		if !createdAt.Before(cutoff) {
			continue
		}

		alertID := strings.TrimPrefix(entry.Key, alertKeyPrefix)
		if err := s.store.Delete(ctx, entry.Key, pendingFanoutKey(alertID)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", entry.Key, err))
			continue
		}
		deleted++
	}

	metrics.AlertsCleaned.Add(float64(deleted))
	s.log.Info("alert cleanup finished",
		zap.Int("deleted", deleted),
		zap.Int("retention_days", retentionDays),
	)

	if errs != nil {
		return deleted, fmt.Errorf("alert service: cleanup: %w", errs)
	}
	return deleted, nil
}

// RecoverPendingFanouts completes fan-outs left behind by failed creates and
// returns how many were finished. Recipients that already hold the alert id
// are not indexed twice.
func (s *AlertService) RecoverPendingFanouts(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	entries, err := s.store.ScanPrefix(ctx, pendingFanoutKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("alert service: scan pending fan-outs: %w", err)
	}

	completed := 0
	var errs error
	for _, entry := range entries {
		alertID := strings.TrimPrefix(entry.Key, pendingFanoutKeyPrefix)
		if err := s.recoverFanout(ctx, alertID, entry); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		completed++
	}

	if completed > 0 {
		metrics.FanoutRecoveries.Add(float64(completed))
		s.log.Info("pending fan-outs recovered", zap.Int("completed", completed))
	}
	if errs != nil {
		return completed, fmt.Errorf("alert service: recover fan-outs: %w", errs)
	}
	return completed, nil
}

func (s *AlertService) recoverFanout(ctx context.Context, alertID string, entry kvstore.Entry) error {
	_, exists, err := s.lookup(ctx, alertID)
	if err != nil {
		return err
	}
	if !exists {
		// Alert was removed since the marker was written.
		return s.store.Delete(ctx, entry.Key)
	}

	recipients, err := decodeIDList(entry.Value)
	if err != nil {
		return fmt.Errorf("pending fan-out %s: %w", alertID, err)
	}

	var errs error
	for _, recipient := range normaliseIDs(recipients) {
		if err := s.indexWithRetry(ctx, recipient, alertID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("index %s for %s: %w", alertID, recipient, err))
		}
	}
	if errs != nil {
		return errs
	}
	return s.store.Delete(ctx, entry.Key)
}

func (s *AlertService) lookup(ctx context.Context, alertID string) (*models.EmergencyAlert, bool, error) {
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return nil, false, nil
	}

	data, ok, err := s.store.Get(ctx, alertKey(alertID))
	if err != nil {
		return nil, false, fmt.Errorf("alert service: load alert %s: %w", alertID, err)
	}
	if !ok {
		return nil, false, nil
	}

	alert, err := decodeAlert(data)
	if err != nil {
		return nil, false, fmt.Errorf("alert service: %s: %w: %v", alertID, errCorruptAlert, err)
	}
	return alert, true, nil
}

func (s *AlertService) save(ctx context.Context, alert *models.EmergencyAlert) error {
	data, err := encodeAlert(alert)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, alertKey(alert.ID), data)
}

func (s *AlertService) allocateID(ctx context.Context, now time.Time) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.newID(now)
		_, exists, err := s.store.Get(ctx, alertKey(id))
		if err != nil {
			return "", fmt.Errorf("alert service: check alert id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("alert service: could not allocate a unique alert id")
}

func defaultAlertID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix[:idSuffixLength])
}
