package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/safeguard/internal/models"
	"github.com/charlesng35/safeguard/internal/services"
	appErrors "github.com/charlesng35/safeguard/pkg/errors"
	"github.com/charlesng35/safeguard/pkg/logger"
	"github.com/charlesng35/safeguard/pkg/response"
	appValidator "github.com/charlesng35/safeguard/pkg/validator"
)

const linkSuccessMessage = "Family member linked successfully"

// AlertHandler exposes the emergency alert and family link endpoints. Caller
// supplied ids are trusted; there is no authentication at this layer.
type AlertHandler struct {
	alerts        *services.AlertService
	links         *services.FamilyLinkService
	retentionDays int
	log           *zap.Logger
}

// NewAlertHandler constructs an alert handler.
func NewAlertHandler(alerts *services.AlertService, links *services.FamilyLinkService, retentionDays int) (*AlertHandler, error) {
	if alerts == nil {
		return nil, errors.New("alert handler: alert service is required")
	}
	if links == nil {
		return nil, errors.New("alert handler: family link service is required")
	}
	return &AlertHandler{
		alerts:        alerts,
		links:         links,
		retentionDays: retentionDays,
		log:           logger.WithModule("handlers"),
	}, nil
}

type createAlertRequest struct {
	ElderlyUserID string              `json:"elderlyUserId" validate:"required"`
	ElderlyName   string              `json:"elderlyName" validate:"required"`
	ElderlyPhone  string              `json:"elderlyPhone" validate:"required"`
	ElderlyEmail  string              `json:"elderlyEmail"`
	Location      *models.Location    `json:"location"`
	MedicalInfo   *models.MedicalInfo `json:"medicalInfo"`
}

func (createAlertRequest) validationError(appValidator.ValidationErrors) error {
	return services.ErrMissingAlertFields
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active resolved cancelled"`
}

func (updateStatusRequest) validationError(appValidator.ValidationErrors) error {
	return services.ErrInvalidStatus
}

type markReadRequest struct {
	FamilyMemberID string `json:"familyMemberId" validate:"required"`
}

func (markReadRequest) validationError(appValidator.ValidationErrors) error {
	return services.ErrMissingFamilyMember
}

type linkFamilyRequest struct {
	ElderlyPhone string `json:"elderlyPhone" validate:"required"`
	FamilyPhone  string `json:"familyPhone" validate:"required"`
}

func (linkFamilyRequest) validationError(appValidator.ValidationErrors) error {
	return appErrors.NewBadRequest("Missing elderlyPhone or familyPhone")
}

// Create raises a new emergency alert and fans it out to linked family members.
func (h *AlertHandler) Create(c *gin.Context) {
	var req createAlertRequest
	if !bindAndValidate(c, &req) {
		return
	}

	alert, err := h.alerts.Create(requestContext(c), services.CreateAlertInput{
		ElderlyUserID: req.ElderlyUserID,
		ElderlyName:   req.ElderlyName,
		ElderlyPhone:  req.ElderlyPhone,
		ElderlyEmail:  req.ElderlyEmail,
		Location:      req.Location,
		MedicalInfo:   req.MedicalInfo,
	})
	if err != nil {
		h.fail(c, err, "Failed to create emergency alert")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"alert": alert})
}

// ListForFamilyMember returns every alert indexed for the family member, newest first.
func (h *AlertHandler) ListForFamilyMember(c *gin.Context) {
	alerts, err := h.alerts.ListForRecipient(requestContext(c), pathParam(c, "familyMemberId"))
	if err != nil {
		h.fail(c, err, "Failed to fetch alerts")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"alerts": alerts})
}

// ListActiveForFamilyMember returns the family member's active alerts.
func (h *AlertHandler) ListActiveForFamilyMember(c *gin.Context) {
	alerts, err := h.alerts.ListActiveForRecipient(requestContext(c), pathParam(c, "familyMemberId"))
	if err != nil {
		h.fail(c, err, "Failed to fetch active alerts")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"alerts": alerts})
}

// UnreadCount returns the number of active alerts the family member has not acknowledged.
func (h *AlertHandler) UnreadCount(c *gin.Context) {
	count, err := h.alerts.CountUnreadForRecipient(requestContext(c), pathParam(c, "familyMemberId"))
	if err != nil {
		h.fail(c, err, "Failed to fetch unread count")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// Get returns a single alert.
func (h *AlertHandler) Get(c *gin.Context) {
	alert, err := h.alerts.Get(requestContext(c), pathParam(c, "alertId"))
	if err != nil {
		h.fail(c, err, "Failed to fetch alert")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"alert": alert})
}

// UpdateStatus overwrites the alert status.
func (h *AlertHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	alert, err := h.alerts.UpdateStatus(requestContext(c), pathParam(c, "alertId"), models.AlertStatus(req.Status))
	if err != nil {
		h.fail(c, err, "Failed to update alert status")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"alert": alert})
}

// MarkRead records a family member's acknowledgement.
func (h *AlertHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	alert, err := h.alerts.MarkRead(requestContext(c), pathParam(c, "alertId"), req.FamilyMemberID)
	if err != nil {
		h.fail(c, err, "Failed to mark alert as read")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"alert": alert})
}

// LinkFamily links a family member to an elderly user by phone number.
func (h *AlertHandler) LinkFamily(c *gin.Context) {
	var req linkFamilyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.links.LinkByContact(requestContext(c), req.ElderlyPhone, req.FamilyPhone); err != nil {
		h.fail(c, err, "Failed to link family member")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": linkSuccessMessage})
}

// ListFamilyMembers returns the family members linked to an elderly user.
func (h *AlertHandler) ListFamilyMembers(c *gin.Context) {
	members, err := h.links.ListFamilyMembers(requestContext(c), pathParam(c, "elderlyUserId"))
	if err != nil {
		h.fail(c, err, "Failed to fetch family members")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"familyMemberIds": members})
}

// Cleanup runs the retention sweep immediately.
func (h *AlertHandler) Cleanup(c *gin.Context) {
	deleted, err := h.alerts.Cleanup(requestContext(c), h.retentionDays)
	if err != nil {
		h.fail(c, err, "Failed to clean old alerts")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deletedCount": deleted})
}

// fail renders client errors as-is and wraps anything else as a storage fault.
func (h *AlertHandler) fail(c *gin.Context, err error, message string) {
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		response.Error(c, appErr)
		return
	}

	h.log.Error(message,
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	response.Error(c, appErrors.Wrap(err, message))
}
