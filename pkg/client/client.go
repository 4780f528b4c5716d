// Package client is the Go client for the assessment persistence and QA
// endpoints. SectionForm and Review build the section editing and review
// workflows on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hhemr/hhemr/pkg/forms"
	"github.com/hhemr/hhemr/pkg/validation"
)

const (
	QAStatusInUse     = "INUSE"
	QAStatusApproved  = "APPROVED"
	QAStatusRejected  = "REJECTED"
	QAStatusCompleted = "COMPLETED"
)

var (
	// ErrConflict is returned when the server rejects a write because the
	// record changed since it was read, or the QA transition is not allowed.
	ErrConflict = errors.New("assessment was modified by another session")
	ErrNotFound = errors.New("assessment not found")
)

// APIError is a non-2xx response that is not a validation failure.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api error %d: %s (request %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match ErrConflict and ErrNotFound with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	agency     string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithAgency sets the X-Agency-ID header for service accounts.
func WithAgency(agencyID string) Option {
	return func(c *Client) { c.agency = agencyID }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Assessment is the client view of a stored assessment. Sections holds the
// raw JSON of every saved section keyed by section name.
type Assessment struct {
	ID                uuid.UUID                  `json:"id"`
	PatientScheduleID uuid.UUID                  `json:"patientScheduleId"`
	PatientID         *uuid.UUID                 `json:"patientId,omitempty"`
	CaregiverID       uuid.UUID                  `json:"caregiverId"`
	ProviderID        uuid.UUID                  `json:"providerId"`
	QAStatus          string                     `json:"qaStatus"`
	QAComment         *string                    `json:"qaComment,omitempty"`
	QAReviewedBy      *string                    `json:"qaReviewedBy,omitempty"`
	VisitDate         *string                    `json:"visitDate,omitempty"`
	TimeIn            *string                    `json:"timeIn,omitempty"`
	TimeOut           *string                    `json:"timeOut,omitempty"`
	VersionID         int                        `json:"versionId"`
	SectionVersions   map[string]int             `json:"sectionVersions,omitempty"`
	Scores            []forms.Score              `json:"scores,omitempty"`
	Sections          map[string]json.RawMessage `json:"-"`
}

func (a *Assessment) UnmarshalJSON(data []byte) error {
	type plain Assessment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	p.Sections = make(map[string]json.RawMessage)
	for k, v := range all {
		if _, ok := forms.Lookup(k); ok {
			p.Sections[k] = v
		}
	}
	*a = Assessment(p)
	return nil
}

// Section decodes the saved section name into its typed payload. Stored
// sections are decoded without validation. It returns nil when the section
// has not been saved.
func (a *Assessment) Section(name string) (forms.Section, error) {
	def, ok := forms.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown section %q", name)
	}
	raw, ok := a.Sections[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	s := def.New()
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return s, nil
}

// SaveInput is one save request. Only the sections listed are written; the
// server leaves the others untouched.
type SaveInput struct {
	ID                *uuid.UUID
	PatientScheduleID uuid.UUID
	PatientID         *uuid.UUID
	CaregiverID       uuid.UUID
	ProviderID        uuid.UUID
	VisitDate         *string
	TimeIn            *string
	TimeOut           *string
	ExpectedVersion   int
	Sections          map[string]json.RawMessage
}

func (in SaveInput) body() map[string]interface{} {
	body := map[string]interface{}{
		"patientScheduleId": in.PatientScheduleID,
		"caregiverId":       in.CaregiverID,
		"providerId":        in.ProviderID,
	}
	if in.ID != nil {
		body["id"] = *in.ID
	}
	if in.PatientID != nil {
		body["patientId"] = *in.PatientID
	}
	if in.VisitDate != nil {
		body["visitDate"] = *in.VisitDate
	}
	if in.TimeIn != nil {
		body["timeIn"] = *in.TimeIn
	}
	if in.TimeOut != nil {
		body["timeOut"] = *in.TimeOut
	}
	if in.ExpectedVersion > 0 {
		body["expectedVersion"] = in.ExpectedVersion
	}
	for name, raw := range in.Sections {
		body[name] = raw
	}
	return body
}

type SaveResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ID        uuid.UUID `json:"id"`
	VersionID int       `json:"versionId"`
	QAStatus  string    `json:"qaStatus"`
}

// SaveSections posts the sections to the persistence endpoint.
func (c *Client) SaveSections(ctx context.Context, in SaveInput) (*SaveResult, error) {
	if len(in.Sections) == 0 {
		return nil, validation.Errors{"sections": "at least one section is required"}
	}
	var res SaveResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/assessments", in.body(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateQAStatus records a review decision. A nil or empty comment clears
// the stored comment.
func (c *Client) UpdateQAStatus(ctx context.Context, id uuid.UUID, status string, comment *string) error {
	if err := validation.Var("status", status, "oneof=APPROVED REJECTED"); err != nil {
		return err
	}
	body := map[string]interface{}{"id": id, "status": status}
	if comment != nil && *comment != "" {
		body["qaComment"] = *comment
	}
	return c.do(ctx, http.MethodPut, "/api/v1/assessments/"+id.String()+"/qa", body, nil)
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	var a Assessment
	if err := c.do(ctx, http.MethodGet, "/api/v1/assessments/"+id.String(), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetBySchedule returns the assessment documenting a visit, or ErrNotFound.
func (c *Client) GetBySchedule(ctx context.Context, patientScheduleID uuid.UUID) (*Assessment, error) {
	q := url.Values{"patientScheduleId": {patientScheduleID.String()}}
	var page struct {
		Data []Assessment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/assessments?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, ErrNotFound
	}
	return &page.Data[0], nil
}

// ListByPatient returns one page of a patient's assessments and the total
// count.
func (c *Client) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Assessment, int, error) {
	q := url.Values{
		"patientId": {patientID.String()},
		"limit":     {strconv.Itoa(limit)},
		"offset":    {strconv.Itoa(offset)},
	}
	var page struct {
		Data  []Assessment `json:"data"`
		Total int          `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/assessments?"+q.Encode(), nil, &page); err != nil {
		return nil, 0, err
	}
	return page.Data, page.Total, nil
}

type errorBody struct {
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors"`
	RequestID string            `json:"requestId"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.agency != "" {
		req.Header.Set("X-Agency-ID", c.agency)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) != nil || eb.Message == "" {
			eb.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusBadRequest && len(eb.Errors) > 0 {
			return validation.Errors(eb.Errors)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: eb.Message, RequestID: eb.RequestID}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
