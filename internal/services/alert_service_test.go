package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/safeguard/internal/kvstore"
	"github.com/charlesng35/safeguard/internal/models"
)

func createInput(elderlyUserID string) CreateAlertInput {
	return CreateAlertInput{
		ElderlyUserID: elderlyUserID,
		ElderlyName:   "Margaret Doe",
		ElderlyPhone:  "+15551234567",
		ElderlyEmail:  "margaret@example.com",
		Location:      &models.Location{Latitude: 37.77, Longitude: -122.42, Address: "1 Main St"},
		MedicalInfo:   &models.MedicalInfo{BloodType: "O+", Allergies: "penicillin"},
	}
}

func TestNewAlertServiceRequiresDependencies(t *testing.T) {
	store := kvstore.NewMemoryStore()
	links, err := NewFamilyLinkService(store)
	require.NoError(t, err)

	_, err = NewAlertService(nil, links)
	require.Error(t, err)
	_, err = NewAlertService(store, nil)
	require.Error(t, err)
}

func TestAlertServiceCreateSnapshotsRecipients(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:+15551234567", "A"))
	require.NoError(t, svc.links.Link(ctx, "user:+15551234567", "B"))

	alert, err := svc.alerts.Create(ctx, createInput("user:+15551234567"))
	require.NoError(t, err)

	require.Equal(t, models.AlertStatusActive, alert.Status)
	require.Equal(t, []string{}, alert.ReadBy)
	require.Equal(t, []string{"A", "B"}, alert.FamilyMemberIDs)
	require.Equal(t, "2024-05-01T12:00:00.000Z", alert.Timestamp)
	require.Regexp(t, regexp.MustCompile(`^1714564800000-[0-9a-f]{9}$`), alert.ID)
	require.Equal(t, "O+", alert.MedicalInfo.BloodType)
	require.Equal(t, "1 Main St", alert.Location.Address)

	stored, err := svc.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, alert, stored)
}

func TestAlertServiceCreateRequiresIdentity(t *testing.T) {
	svc := newTestServices(t, nil)

	input := createInput("user:1")
	input.ElderlyPhone = "  "
	_, err := svc.alerts.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrMissingAlertFields)
}

func TestAlertServiceFanoutReachesOnlyLinkedMembers(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:+15551234567", "A"))
	require.NoError(t, svc.links.Link(ctx, "user:+15551234567", "B"))

	alert, err := svc.alerts.Create(ctx, createInput("user:+15551234567"))
	require.NoError(t, err)

	for _, member := range []string{"A", "B"} {
		active, err := svc.alerts.ListActiveForRecipient(ctx, member)
		require.NoError(t, err)
		require.Equal(t, []string{alert.ID}, alertIDs(active), member)
	}

	active, err := svc.alerts.ListActiveForRecipient(ctx, "C")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestAlertServiceLateLinksAreNotRetroactive(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:123", "user:456"))

	alert, err := svc.alerts.Create(ctx, createInput("user:123"))
	require.NoError(t, err)
	require.Contains(t, alert.FamilyMemberIDs, "user:456")

	require.NoError(t, svc.links.Link(ctx, "user:123", "user:789"))

	stored, err := svc.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"user:456"}, stored.FamilyMemberIDs)

	late, err := svc.alerts.ListForRecipient(ctx, "user:789")
	require.NoError(t, err)
	require.Empty(t, late)
}

func TestAlertServiceListForRecipientNewestFirst(t *testing.T) {
	svc := newTestServices(t, nil, WithIDGenerator(sequentialIDs("first", "second", "third")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))

	for i := 0; i < 3; i++ {
		_, err := svc.alerts.Create(ctx, createInput("user:1"))
		require.NoError(t, err)
		svc.clock.Advance(time.Minute)
	}

	alerts, err := svc.alerts.ListForRecipient(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"third", "second", "first"}, alertIDs(alerts))
}

func TestAlertServiceActiveIsSubsetOfAll(t *testing.T) {
	svc := newTestServices(t, nil, WithIDGenerator(sequentialIDs("a1", "a2", "a3")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))

	for i := 0; i < 3; i++ {
		_, err := svc.alerts.Create(ctx, createInput("user:1"))
		require.NoError(t, err)
	}
	_, err := svc.alerts.UpdateStatus(ctx, "a2", models.AlertStatusResolved)
	require.NoError(t, err)

	all, err := svc.alerts.ListForRecipient(ctx, "A")
	require.NoError(t, err)
	active, err := svc.alerts.ListActiveForRecipient(ctx, "A")
	require.NoError(t, err)

	var expected []string
	for _, alert := range all {
		if alert.Status == models.AlertStatusActive {
			expected = append(expected, alert.ID)
		}
	}
	require.Equal(t, expected, alertIDs(active))
	require.Equal(t, []string{"a3", "a1"}, alertIDs(active))
}

func TestAlertServiceCountUnread(t *testing.T) {
	svc := newTestServices(t, nil, WithIDGenerator(sequentialIDs("a1", "a2", "a3")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	require.NoError(t, svc.links.Link(ctx, "user:1", "B"))

	for i := 0; i < 3; i++ {
		_, err := svc.alerts.Create(ctx, createInput("user:1"))
		require.NoError(t, err)
	}

	_, err := svc.alerts.MarkRead(ctx, "a1", "A")
	require.NoError(t, err)
	_, err = svc.alerts.UpdateStatus(ctx, "a2", models.AlertStatusCancelled)
	require.NoError(t, err)

	countA, err := svc.alerts.CountUnreadForRecipient(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, 1, countA)

	padded, err := svc.alerts.CountUnreadForRecipient(ctx, " A ")
	require.NoError(t, err)
	require.Equal(t, countA, padded)

	countB, err := svc.alerts.CountUnreadForRecipient(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, 2, countB)

	countC, err := svc.alerts.CountUnreadForRecipient(ctx, "C")
	require.NoError(t, err)
	require.Zero(t, countC)
}

func TestAlertServiceStatusTransitionsAreUnrestricted(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()

	alert, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	_, err = svc.alerts.UpdateStatus(ctx, alert.ID, models.AlertStatusResolved)
	require.NoError(t, err)
	stored, err := svc.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusResolved, stored.Status)

	updated, err := svc.alerts.UpdateStatus(ctx, alert.ID, models.AlertStatusActive)
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusActive, updated.Status)
	require.Equal(t, alert.Timestamp, updated.Timestamp)
}

func TestAlertServiceUpdateStatusErrors(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()

	_, err := svc.alerts.UpdateStatus(ctx, "missing", models.AlertStatusResolved)
	require.ErrorIs(t, err, ErrAlertNotFound)

	alert, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)
	_, err = svc.alerts.UpdateStatus(ctx, alert.ID, models.AlertStatus("archived"))
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestAlertServiceMarkReadIsIdempotent(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	require.NoError(t, svc.links.Link(ctx, "user:1", "B"))

	alert, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	once, err := svc.alerts.MarkRead(ctx, alert.ID, "A")
	require.NoError(t, err)
	twice, err := svc.alerts.MarkRead(ctx, alert.ID, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, once.ReadBy)
	require.Equal(t, once.ReadBy, twice.ReadBy)

	stored, err := svc.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, stored.ReadBy)
}

func TestAlertServiceMarkReadIgnoresNonRecipients(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))

	alert, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	result, err := svc.alerts.MarkRead(ctx, alert.ID, "stranger")
	require.NoError(t, err)
	require.Empty(t, result.ReadBy)

	stored, err := svc.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	require.Subset(t, stored.FamilyMemberIDs, stored.ReadBy)
	require.Empty(t, stored.ReadBy)
}

func TestAlertServiceMarkReadMissingAlertLeavesStoreUnchanged(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	_, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	before, err := svc.store.ScanPrefix(ctx, "")
	require.NoError(t, err)

	_, err = svc.alerts.MarkRead(ctx, "does-not-exist", "A")
	require.ErrorIs(t, err, ErrAlertNotFound)

	after, err := svc.store.ScanPrefix(ctx, "")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestAlertServiceMarkReadRequiresMember(t *testing.T) {
	svc := newTestServices(t, nil)

	_, err := svc.alerts.MarkRead(context.Background(), "any", " ")
	require.ErrorIs(t, err, ErrMissingFamilyMember)
}

func TestAlertServiceGetUnknownAlert(t *testing.T) {
	svc := newTestServices(t, nil)

	_, err := svc.alerts.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrAlertNotFound)

	_, err = svc.alerts.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertServiceCreateRegeneratesCollidingIDs(t *testing.T) {
	svc := newTestServices(t, nil, WithIDGenerator(sequentialIDs("dup", "dup", "fresh")))
	ctx := context.Background()

	first, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)
	require.Equal(t, "dup", first.ID)

	second, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)
	require.Equal(t, "fresh", second.ID)
}

func TestAlertServiceCleanupRemovesExpiredAlerts(t *testing.T) {
	svc := newTestServices(t, nil, WithIDGenerator(sequentialIDs("old-active", "old-resolved", "recent")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))

	_, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)
	_, err = svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)
	_, err = svc.alerts.UpdateStatus(ctx, "old-resolved", models.AlertStatusResolved)
	require.NoError(t, err)

	svc.clock.Advance(31 * 24 * time.Hour)
	recent, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	deleted, err := svc.alerts.Cleanup(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	_, err = svc.alerts.Get(ctx, "old-active")
	require.ErrorIs(t, err, ErrAlertNotFound)
	_, err = svc.alerts.Get(ctx, "old-resolved")
	require.ErrorIs(t, err, ErrAlertNotFound)

	kept, err := svc.alerts.Get(ctx, recent.ID)
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusActive, kept.Status)

	// Dangling index entries are skipped.
	alerts, err := svc.alerts.ListForRecipient(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"recent"}, alertIDs(alerts))

	index, err := loadIDList(ctx, svc.store, recipientIndexKey("A"))
	require.NoError(t, err)
	require.Len(t, index, 3)
}

func TestAlertServiceCleanupDefaultsToThirtyDays(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()

	_, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	svc.clock.Advance(29 * 24 * time.Hour)
	deleted, err := svc.alerts.Cleanup(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, deleted)

	svc.clock.Advance(2 * 24 * time.Hour)
	deleted, err = svc.alerts.Cleanup(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
}

func TestAlertServiceCleanupSkipsUnparseableRecords(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.store.Set(ctx, alertKey("bad-ts"), []byte(`{"id":"bad-ts","timestamp":"last week","status":"active"}`)))
	require.NoError(t, svc.store.Set(ctx, alertKey("bad-json"), []byte(`"just a string"`)))

	svc.clock.Advance(365 * 24 * time.Hour)
	deleted, err := svc.alerts.Cleanup(ctx, 30)
	require.NoError(t, err)
	require.Zero(t, deleted)

	_, ok, err := svc.store.Get(ctx, alertKey("bad-ts"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAlertServiceCleanupSurfacesScanFailure(t *testing.T) {
	store := newFaultyStore()
	svc := newTestServices(t, store)
	store.failScan = true

	_, err := svc.alerts.Cleanup(context.Background(), 30)
	require.ErrorIs(t, err, errInjected)
}

func TestAlertServiceListSkipsCorruptAlerts(t *testing.T) {
	svc := newTestServices(t, nil, WithIDGenerator(sequentialIDs("good")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	_, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	require.NoError(t, svc.store.Set(ctx, alertKey("corrupt"), []byte(`[1,2,3]`)))
	require.NoError(t, saveIDList(ctx, svc.store, recipientIndexKey("A"), []string{"corrupt", "good"}))

	alerts, err := svc.alerts.ListForRecipient(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, alertIDs(alerts))
}

func TestAlertServiceListSurfacesStoreFailure(t *testing.T) {
	store := newFaultyStore()
	svc := newTestServices(t, store)
	store.failGet[recipientIndexKey("A")] = true

	_, err := svc.alerts.ListForRecipient(context.Background(), "A")
	require.ErrorIs(t, err, errInjected)

	_, err = svc.alerts.CountUnreadForRecipient(context.Background(), "A")
	require.ErrorIs(t, err, errInjected)
}

func TestAlertServiceFanoutFailureWithoutJournal(t *testing.T) {
	store := newFaultyStore()
	svc := newTestServices(t, store, WithIDGenerator(sequentialIDs("a1")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	require.NoError(t, svc.links.Link(ctx, "user:1", "B"))
	store.failSetFor(recipientIndexKey("A"), -1)

	_, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.ErrorIs(t, err, errInjected)

	// Every recipient is attempted and the alert itself was stored.
	alerts, err := svc.alerts.ListForRecipient(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, alertIDs(alerts))

	_, err = svc.alerts.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, fanoutAttempts, store.setCalls[recipientIndexKey("A")])
}

func TestAlertServiceFanoutRetriesTransientFailures(t *testing.T) {
	store := newFaultyStore()
	svc := newTestServices(t, store, WithFanoutJournal(true), WithIDGenerator(sequentialIDs("a1")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	store.failSetFor(recipientIndexKey("A"), 1)

	_, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	alerts, err := svc.alerts.ListForRecipient(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, alertIDs(alerts))

	_, ok, err := store.Get(ctx, pendingFanoutKey("a1"))
	require.NoError(t, err)
	require.False(t, ok, "expected pending marker to be cleared")
}

func TestAlertServiceRecoverPendingFanouts(t *testing.T) {
	store := newFaultyStore()
	svc := newTestServices(t, store, WithFanoutJournal(true), WithIDGenerator(sequentialIDs("a1")))
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	require.NoError(t, svc.links.Link(ctx, "user:1", "B"))
	store.failSetFor(recipientIndexKey("B"), -1)

	alert, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)
	require.Equal(t, "a1", alert.ID)

	pending, ok, err := store.Get(ctx, pendingFanoutKey("a1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `["A","B"]`, string(pending))

	completed, err := svc.alerts.RecoverPendingFanouts(ctx)
	require.Error(t, err)
	require.Zero(t, completed)

	store.clearFailures()
	completed, err = svc.alerts.RecoverPendingFanouts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	for _, member := range []string{"A", "B"} {
		index, err := loadIDList(ctx, store, recipientIndexKey(member))
		require.NoError(t, err)
		require.Equal(t, []string{"a1"}, index, member)
	}

	completed, err = svc.alerts.RecoverPendingFanouts(ctx)
	require.NoError(t, err)
	require.Zero(t, completed)
}

func TestAlertServiceRecoverDropsMarkersForDeletedAlerts(t *testing.T) {
	svc := newTestServices(t, nil, WithFanoutJournal(true))
	ctx := context.Background()
	require.NoError(t, saveIDList(ctx, svc.store, pendingFanoutKey("gone"), []string{"A"}))

	completed, err := svc.alerts.RecoverPendingFanouts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	_, ok, err := svc.store.Get(ctx, pendingFanoutKey("gone"))
	require.NoError(t, err)
	require.False(t, ok)

	index, err := loadIDList(ctx, svc.store, recipientIndexKey("A"))
	require.NoError(t, err)
	require.Empty(t, index)
}

func TestAlertServiceReadBySubsetInvariant(t *testing.T) {
	svc := newTestServices(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.links.Link(ctx, "user:1", "A"))
	require.NoError(t, svc.links.Link(ctx, "user:1", "B"))

	alert, err := svc.alerts.Create(ctx, createInput("user:1"))
	require.NoError(t, err)

	for _, member := range []string{"B", "X", "A", "B", "Y"} {
		_, err := svc.alerts.MarkRead(ctx, alert.ID, member)
		require.NoError(t, err)
	}
	_, err = svc.alerts.UpdateStatus(ctx, alert.ID, models.AlertStatusCancelled)
	require.NoError(t, err)

	stored, err := svc.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, stored.ReadBy)
	require.Subset(t, stored.FamilyMemberIDs, stored.ReadBy)
}
