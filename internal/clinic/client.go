// Package clinic provides an HTTP client for the clinic appointment API.
package clinic

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/metrics"
)

// Exchange names, used for spans, metrics and logs.
const (
	ExchangeHistory   = "history"
	ExchangeDiagnose  = "diagnose"
	ExchangeRecommend = "recommend"
	ExchangeCreate    = "create_appointment"
	ExchangeUpdate    = "update_appointment"
	ExchangeCancel    = "cancel_appointment"
	ExchangeList      = "list_appointments"
)

const tracerName = "github.com/xiaot623/clinic-assistant/internal/clinic"

// ErrNotConfirmed is returned when the backend answers 2xx but reports
// success=false.
var ErrNotConfirmed = errors.New("clinic api did not confirm the request")

// APIError is a non-2xx answer from the clinic API.
type APIError struct {
	Exchange   string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("clinic %s: status %d: %s", e.Exchange, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("clinic %s: status %d", e.Exchange, e.StatusCode)
}

// errorResponse is the FastAPI error body. Detail is a string for
// HTTPException and a list for request validation failures.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Client is an HTTP client for the clinic API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records exchange counts and latencies on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new clinic API client. baseURL includes the API prefix,
// e.g. http://localhost:8001/api.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchHistory calls GET /patient/{id}/history.
func (c *Client) FetchHistory(ctx context.Context, patientID string) (*domain.Patient, error) {
	var patient domain.Patient
	path := "/patient/" + url.PathEscape(patientID) + "/history"
	if err := c.do(ctx, ExchangeHistory, http.MethodGet, path, nil, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// Diagnose calls POST /patient/diagnose.
func (c *Client) Diagnose(ctx context.Context, req domain.DiagnoseRequest) (*domain.Diagnosis, error) {
	var diagnosis domain.Diagnosis
	if err := c.do(ctx, ExchangeDiagnose, http.MethodPost, "/patient/diagnose", req, &diagnosis); err != nil {
		return nil, err
	}
	return &diagnosis, nil
}

// RecommendDoctors calls POST /patient/recommend.
func (c *Client) RecommendDoctors(ctx context.Context, req domain.RecommendRequest) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	if err := c.do(ctx, ExchangeRecommend, http.MethodPost, "/patient/recommend", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateAppointment calls POST /appointment/create.
func (c *Client) CreateAppointment(ctx context.Context, req domain.CreateAppointmentRequest) (*domain.CreatedAppointment, error) {
	var created domain.CreatedAppointment
	if err := c.do(ctx, ExchangeCreate, http.MethodPost, "/appointment/create", req, &created); err != nil {
		return nil, err
	}
	if !created.Success {
		return nil, fmt.Errorf("%s: %w", ExchangeCreate, ErrNotConfirmed)
	}
	return &created, nil
}

// UpdateAppointment calls PUT /appointment/update.
func (c *Client) UpdateAppointment(ctx context.Context, req domain.UpdateAppointmentRequest) (*domain.Confirmation, error) {
	var conf domain.Confirmation
	if err := c.do(ctx, ExchangeUpdate, http.MethodPut, "/appointment/update", req, &conf); err != nil {
		return nil, err
	}
	if !conf.Success {
		return nil, fmt.Errorf("%s: %w", ExchangeUpdate, ErrNotConfirmed)
	}
	return &conf, nil
}

// CancelAppointment calls DELETE /appointment/cancel. Any 2xx answer counts
// as a confirmation.
func (c *Client) CancelAppointment(ctx context.Context, req domain.CancelAppointmentRequest) (*domain.Confirmation, error) {
	var conf domain.Confirmation
	if err := c.do(ctx, ExchangeCancel, http.MethodDelete, "/appointment/cancel", req, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// ListAppointments calls GET /patient/{id}/appointments.
func (c *Client) ListAppointments(ctx context.Context, patientID string) ([]domain.Appointment, error) {
	var list domain.AppointmentList
	path := "/patient/" + url.PathEscape(patientID) + "/appointments"
	if err := c.do(ctx, ExchangeList, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Appointments, nil
}

// do performs one JSON exchange. body may be nil; out must be a pointer.
func (c *Client) do(ctx context.Context, exchange, method, path string, body, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "clinic."+exchange,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.metrics != nil {
			c.metrics.ExchangesTotal.WithLabelValues(exchange, outcome).Inc()
			c.metrics.ExchangeDuration.WithLabelValues(exchange).Observe(time.Since(start).Seconds())
		}
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", exchange, err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", exchange, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call clinic %s: %w", exchange, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{
			Exchange:   exchange,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(respBody),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", exchange, err)
	}
	return nil
}

func errorDetail(body []byte) string {
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && len(errResp.Detail) > 0 {
		var s string
		if json.Unmarshal(errResp.Detail, &s) == nil {
			return s
		}
		return string(errResp.Detail)
	}
	return strings.TrimSpace(string(body))
}
