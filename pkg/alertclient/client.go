// Package alertclient is a Go client for the emergency alert HTTP API.
package alertclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charlesng35/safeguard/internal/models"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorPayload = 64 << 10
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("alert api: %d %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("alert api: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CreateAlertRequest is the payload for raising an alert.
type CreateAlertRequest struct {
	ElderlyUserID string              `json:"elderlyUserId"`
	ElderlyName   string              `json:"elderlyName"`
	ElderlyPhone  string              `json:"elderlyPhone"`
	ElderlyEmail  string              `json:"elderlyEmail,omitempty"`
	Location      *models.Location    `json:"location,omitempty"`
	MedicalInfo   *models.MedicalInfo `json:"medicalInfo,omitempty"`
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBasePath overrides the API prefix, "/api" by default.
func WithBasePath(path string) Option {
	return func(c *Client) {
		c.basePath = "/" + strings.Trim(strings.TrimSpace(path), "/")
	}
}

// Client calls the alert endpoints of a SafeGuard server.
type Client struct {
	baseURL  string
	basePath string
	http     *http.Client
}

// New builds a client for the server at baseURL, e.g. "http://localhost:3000".
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("alertclient: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("alertclient: base url %q must include scheme and host", baseURL)
	}

	c := &Client{
		baseURL:  strings.TrimRight(parsed.String(), "/"),
		basePath: "/api",
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// CreateAlert raises an alert and returns the stored record.
func (c *Client) CreateAlert(ctx context.Context, req CreateAlertRequest) (*models.EmergencyAlert, error) {
	var out struct {
		Alert *models.EmergencyAlert `json:"alert"`
	}
	if err := c.do(ctx, http.MethodPost, c.alertsPath("create"), req, &out); err != nil {
		return nil, err
	}
	return out.Alert, nil
}

// ListAlerts returns every alert indexed for the family member, newest first.
func (c *Client) ListAlerts(ctx context.Context, familyMemberID string) ([]*models.EmergencyAlert, error) {
	return c.listAlerts(ctx, c.alertsPath("family", familyMemberID))
}

// ListActiveAlerts returns the family member's active alerts.
func (c *Client) ListActiveAlerts(ctx context.Context, familyMemberID string) ([]*models.EmergencyAlert, error) {
	return c.listAlerts(ctx, c.alertsPath("family", familyMemberID, "active"))
}

// UnreadCount returns the number of active alerts the member has not read.
func (c *Client) UnreadCount(ctx context.Context, familyMemberID string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, c.alertsPath("family", familyMemberID, "unread-count"), nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// GetAlert fetches a single alert.
func (c *Client) GetAlert(ctx context.Context, alertID string) (*models.EmergencyAlert, error) {
	var out struct {
		Alert *models.EmergencyAlert `json:"alert"`
	}
	if err := c.do(ctx, http.MethodGet, c.alertsPath(alertID), nil, &out); err != nil {
		return nil, err
	}
	return out.Alert, nil
}

// UpdateStatus sets the alert status.
func (c *Client) UpdateStatus(ctx context.Context, alertID string, status models.AlertStatus) (*models.EmergencyAlert, error) {
	var out struct {
		Alert *models.EmergencyAlert `json:"alert"`
	}
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPut, c.alertsPath(alertID, "status"), body, &out); err != nil {
		return nil, err
	}
	return out.Alert, nil
}

// MarkRead acknowledges an alert on behalf of a family member.
func (c *Client) MarkRead(ctx context.Context, alertID, familyMemberID string) (*models.EmergencyAlert, error) {
	var out struct {
		Alert *models.EmergencyAlert `json:"alert"`
	}
	body := map[string]string{"familyMemberId": familyMemberID}
	if err := c.do(ctx, http.MethodPost, c.alertsPath(alertID, "read"), body, &out); err != nil {
		return nil, err
	}
	return out.Alert, nil
}

// LinkFamily links a family member to an elderly user by phone number.
func (c *Client) LinkFamily(ctx context.Context, elderlyPhone, familyPhone string) error {
	body := map[string]string{"elderlyPhone": elderlyPhone, "familyPhone": familyPhone}
	return c.do(ctx, http.MethodPost, c.alertsPath("link-family"), body, nil)
}

// ListFamilyMembers returns the members linked to an elderly user.
func (c *Client) ListFamilyMembers(ctx context.Context, elderlyUserID string) ([]string, error) {
	var out struct {
		FamilyMemberIDs []string `json:"familyMemberIds"`
	}
	if err := c.do(ctx, http.MethodGet, c.alertsPath("links", elderlyUserID), nil, &out); err != nil {
		return nil, err
	}
	return out.FamilyMemberIDs, nil
}

// Cleanup triggers the retention sweep and returns the number of deleted alerts.
func (c *Client) Cleanup(ctx context.Context) (int, error) {
	var out struct {
		DeletedCount int `json:"deletedCount"`
	}
	if err := c.do(ctx, http.MethodPost, c.alertsPath("cleanup"), nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) listAlerts(ctx context.Context, path string) ([]*models.EmergencyAlert, error) {
	var out struct {
		Alerts []*models.EmergencyAlert `json:"alerts"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// alertsPath joins escaped segments under the alerts prefix.
func (c *Client) alertsPath(segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(c.basePath, "/"))
	b.WriteString("/alerts")
	for _, segment := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}
	return b.String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("alertclient: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("alertclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("alertclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("alertclient: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var payload struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Details string `json:"details"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPayload))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
		apiErr.Details = payload.Details
	}
	return apiErr
}
