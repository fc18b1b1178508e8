package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/safeguard/internal/kvstore"
	apperrors "github.com/charlesng35/safeguard/pkg/errors"
	"github.com/charlesng35/safeguard/pkg/logger"
)

const contactUserIDPrefix = "user:"

// MaxIDLength bounds caller supplied user ids so every derived store key fits
// the database key column.
const MaxIDLength = 256

// ErrIDTooLong is returned when a user id exceeds MaxIDLength.
var ErrIDTooLong = apperrors.NewBadRequest(fmt.Sprintf("User ids must be at most %d characters", MaxIDLength))

// ContactUserID derives the opaque user id used for a phone number.
func ContactUserID(phone string) string {
	return contactUserIDPrefix + strings.TrimSpace(phone)
}

// FamilyLinkService maintains, per elderly user, the family members entitled
// to receive that user's alerts. Links are not verified against contact
// ownership.
type FamilyLinkService struct {
	store kvstore.Store
	log   *zap.Logger
}

// NewFamilyLinkService constructs a FamilyLinkService.
func NewFamilyLinkService(store kvstore.Store) (*FamilyLinkService, error) {
	if store == nil {
		return nil, errors.New("family link service: store is required")
	}
	return &FamilyLinkService{store: store, log: logger.WithModule("family_links")}, nil
}

// Link adds familyMemberID to the elderly user's recipients. Linking an
// existing pair succeeds without changes.
func (s *FamilyLinkService) Link(ctx context.Context, elderlyUserID, familyMemberID string) error {
	ctx = ensureContext(ctx)
	elderlyUserID = strings.TrimSpace(elderlyUserID)
	familyMemberID = strings.TrimSpace(familyMemberID)
	if elderlyUserID == "" || familyMemberID == "" {
		return apperrors.NewBadRequest("Missing elderlyUserId or familyMemberId")
	}
	if len(elderlyUserID) > MaxIDLength || len(familyMemberID) > MaxIDLength {
		return ErrIDTooLong
	}

	key := familyLinkKey(elderlyUserID)
	members, err := loadIDList(ctx, s.store, key)
	if err != nil {
		return fmt.Errorf("family link service: %w", err)
	}
	if containsString(members, familyMemberID) {
		return nil
	}

	members = append(members, familyMemberID)
	if err := saveIDList(ctx, s.store, key, members); err != nil {
		return fmt.Errorf("family link service: %w", err)
	}

	s.log.Info("family member linked",
		zap.String("elderly_user_id", elderlyUserID),
		zap.String("family_member_id", familyMemberID),
	)
	return nil
}

// LinkByContact links two users identified by phone number.
func (s *FamilyLinkService) LinkByContact(ctx context.Context, elderlyPhone, familyPhone string) error {
	elderlyPhone = strings.TrimSpace(elderlyPhone)
	familyPhone = strings.TrimSpace(familyPhone)
	if elderlyPhone == "" || familyPhone == "" {
		return apperrors.NewBadRequest("Missing elderlyPhone or familyPhone")
	}
	return s.Link(ctx, ContactUserID(elderlyPhone), ContactUserID(familyPhone))
}

// ListFamilyMembers returns the recipients in link order. A user with no
// links yields an empty slice.
func (s *FamilyLinkService) ListFamilyMembers(ctx context.Context, elderlyUserID string) ([]string, error) {
	ctx = ensureContext(ctx)
	elderlyUserID = strings.TrimSpace(elderlyUserID)
	if elderlyUserID == "" {
		return []string{}, nil
	}

	members, err := loadIDList(ctx, s.store, familyLinkKey(elderlyUserID))
	if err != nil {
		return nil, fmt.Errorf("family link service: %w", err)
	}
	return normaliseIDs(members), nil
}
