// Package client is the device-side HTTP client for the fieldops API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/garnizeh/fieldops/internal/offline"
	"github.com/garnizeh/fieldops/pkg/models"
)

// AppVersionHeader carries the app version on every request.
const AppVersionHeader = "X-App-Version"

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status         int      `json:"-"`
	Message        string   `json:"error"`
	Missing        []string `json:"missing,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	RadiusMeters   *float64 `json:"radius_meters,omitempty"`
	LocationError  string   `json:"location_error,omitempty"`
	Retryable      bool     `json:"retryable,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Session is what a successful sign-in returns.
type Session struct {
	Token     string    `json:"token"`
	StaffID   string    `json:"staff_id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WizardState mirrors the server's completion wizard view.
type WizardState struct {
	JobID          string                 `json:"job_id"`
	Step           string                 `json:"step"`
	Requirements   []models.Requirement   `json:"requirements"`
	PhotoChecklist []models.ChecklistItem `json:"photo_checklist"`
	Photos         []models.Photo         `json:"photos"`
	MinPhotos      int                    `json:"min_photos"`
	Quality        []models.ChecklistItem `json:"quality"`
	Notes          string                 `json:"notes"`
	CanProceed     bool                   `json:"can_proceed"`
	Missing        []string               `json:"missing,omitempty"`
}

// Reply is one stored assistant exchange.
type Reply struct {
	Question models.ChatMessage `json:"question"`
	Answer   struct {
		Answer         string   `json:"answer"`
		Steps          []string `json:"steps"`
		SafetyWarnings []string `json:"safety_warnings"`
		Escalate       bool     `json:"escalate"`
	} `json:"answer"`
	Message models.ChatMessage `json:"message"`
}

// Location is the device's answer to a location request.
type Location struct {
	Fix   *models.Fix `json:"fix,omitempty"`
	Error string      `json:"location_error,omitempty"`
}

type Client struct {
	baseURL    string
	appVersion string
	http       *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for baseURL. A nil httpClient uses a 30s timeout.
func New(baseURL, appVersion string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		appVersion: appVersion,
		http:       httpClient,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SigninPIN exchanges a staff code and PIN for a session and keeps its token.
func (c *Client) SigninPIN(ctx context.Context, staffCode, pin string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/v1/auth/pin", map[string]string{"staff_code": staffCode, "pin": pin}, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

func (c *Client) Signout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/v1/auth/signout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// ListJobs returns the caller's jobs. An empty status returns every job.
func (c *Client) ListJobs(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	path := "/v1/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Items []models.Job `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var j models.Job
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, ""), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *Client) Accept(ctx context.Context, jobID string, data offline.AcceptData) (*models.Job, error) {
	body := map[string]any{"fix": data.Fix, "acknowledged": data.Acknowledged, "override": data.Override}
	var j models.Job
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/accept"), body, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *Client) Reject(ctx context.Context, jobID, reason string) (*models.Job, error) {
	var j models.Job
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/reject"), map[string]string{"reason": reason}, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *Client) Start(ctx context.Context, jobID string, loc Location) (*models.Job, error) {
	var j models.Job
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/start"), loc, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *Client) SetRequirement(ctx context.Context, jobID, reqID string, completed bool) (*models.Job, error) {
	var j models.Job
	if err := c.do(ctx, http.MethodPatch, jobPath(jobID, "/requirements/"+url.PathEscape(reqID)), map[string]bool{"is_completed": completed}, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Wizard returns the open completion wizard, opening it when open is set.
func (c *Client) Wizard(ctx context.Context, jobID string, open bool) (*WizardState, error) {
	method := http.MethodGet
	if open {
		method = http.MethodPost
	}
	var st WizardState
	if err := c.do(ctx, method, jobPath(jobID, "/completion"), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WizardAction runs one wizard step call such as "next", "back",
// "quality/area_clean" or "notes" and returns the new state.
func (c *Client) WizardAction(ctx context.Context, jobID, method, action string, body any) (*WizardState, error) {
	var st WizardState
	if err := c.do(ctx, method, jobPath(jobID, "/completion/"+action), body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Complete(ctx context.Context, jobID string, loc Location) (*models.Job, error) {
	var j models.Job
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/completion/complete"), loc, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// UploadPhoto attaches a photo of the given type to the open wizard.
func (c *Client) UploadPhoto(ctx context.Context, jobID string, typ models.PhotoType, filename, contentType string, r io.Reader) (*models.Photo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("type", string(typ)); err != nil {
		return nil, err
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, filepath.Base(filename)))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, jobPath(jobID, "/completion/photos"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var p models.Photo
	if err := c.send(req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Ask(ctx context.Context, jobID, question string) (*Reply, error) {
	var r Reply
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/assistant"), map[string]string{"question": question}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Check is a reachability probe against /health.
func (c *Client) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", offline.ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", offline.ErrUnreachable, resp.StatusCode)
	}
	return nil
}

// Apply replays a queued action against the server. Transport failures and
// gateway errors are reported as offline.ErrUnreachable, final refusals as
// offline.ErrRefused.
func (c *Client) Apply(ctx context.Context, a models.OfflineAction) error {
	var err error
	switch a.Type {
	case models.ActionAccept:
		var data offline.AcceptData
		if len(a.Data) > 0 {
			if err := json.Unmarshal(a.Data, &data); err != nil {
				return fmt.Errorf("decode accept data: %w", err)
			}
		}
		_, err = c.Accept(ctx, a.JobID, data)
	case models.ActionReject:
		var data offline.RejectData
		if err := json.Unmarshal(a.Data, &data); err != nil {
			return fmt.Errorf("decode reject data: %w", err)
		}
		_, err = c.Reject(ctx, a.JobID, data.Reason)
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return err
}

// classify decides how the offline queue treats a server answer. Gateway
// errors and a 503 without the API's retryable flag come from something in
// front of the server and count as unreachable. A retryable 503 from the API
// goes back to the caller, who decides whether to try again. Validation and
// location answers are final for a queued action since its data never
// changes, so they are marked refused.
func classify(apiErr *APIError) error {
	switch apiErr.Status {
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", offline.ErrUnreachable, apiErr)
	case http.StatusServiceUnavailable:
		if !apiErr.Retryable {
			return fmt.Errorf("%w: %w", offline.ErrUnreachable, apiErr)
		}
	case http.StatusForbidden, http.StatusNotFound, http.StatusConflict,
		http.StatusUnprocessableEntity, http.StatusFailedDependency:
		return fmt.Errorf("%w: %w", offline.ErrRefused, apiErr)
	}
	return apiErr
}

var (
	_ offline.Applier = (*Client)(nil)
	_ offline.Probe   = (*Client)(nil)
)

func jobPath(jobID, suffix string) string {
	return "/v1/jobs/" + url.PathEscape(jobID) + suffix
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.appVersion != "" {
		req.Header.Set(AppVersionHeader, c.appVersion)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", offline.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return classify(apiErr)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
