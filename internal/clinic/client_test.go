package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/metrics"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// newTestServer answers every request with status and body, recording what
// it received.
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	got := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Method = r.Method
		got.Path = r.URL.Path
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &got.Body); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("unexpected content type %q", ct)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFetchHistory(t *testing.T) {
	server, got := newTestServer(t, http.StatusOK, `{
		"past_conditions": ["Migraine"],
		"medications": [{"name": "Beloc", "status": "active", "dosage": "50mg", "frequency": "once daily"}],
		"past_appointments": [{"department": "Neurology", "date": "2024-01-15", "doctor": "Dr. Sarah Johnson", "diagnosis": "Migraine"}]
	}`)
	client := NewClient(server.URL + "/api/")

	patient, err := client.FetchHistory(testContext(t), "12345678901")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/api/patient/12345678901/history", got.Path)
	assert.Equal(t, []string{"Migraine"}, patient.PastConditions)
	require.Len(t, patient.Medications, 1)
	assert.Equal(t, "50mg", patient.Medications[0].Dosage)
	require.Len(t, patient.PastAppointments, 1)
	assert.Equal(t, "Dr. Sarah Johnson", patient.PastAppointments[0].Doctor)
}

func TestDiagnoseSendsSymptoms(t *testing.T) {
	server, got := newTestServer(t, http.StatusOK, `{
		"warnings": [], "initial_treatment": ["Rest"],
		"recommended_departments": ["cardiology", "neurology"],
		"patient_specific_notes": ["note"]
	}`)
	client := NewClient(server.URL)

	diagnosis, err := client.Diagnose(testContext(t), domain.DiagnoseRequest{
		TCNumber: "12345678901",
		Symptoms: "I have a headache and nausea",
		Severity: "moderate",
		Duration: "recent",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/patient/diagnose", got.Path)
	assert.Equal(t, "I have a headache and nausea", got.Body["symptoms"])
	assert.Equal(t, "12345678901", got.Body["tc_number"])
	assert.Equal(t, "moderate", got.Body["severity"])
	assert.Equal(t, "recent", got.Body["duration"])
	assert.Equal(t, []string{"cardiology", "neurology"}, diagnosis.RecommendedDepartments)
	assert.Equal(t, []string{"note"}, diagnosis.PatientSpecificNotes)
}

func TestRecommendDoctorsKeepsSlotPresence(t *testing.T) {
	server, got := newTestServer(t, http.StatusOK, `{"available_doctors": [
		{"name": "Dr. Emma Wilson", "specialization": "Cardiology"},
		{"name": "Dr. Robert Taylor", "available_slots": []},
		{"id": 7, "name": "Dr. Michael Chen", "available_slots": ["9:00"]}
	]}`)
	client := NewClient(server.URL)

	rec, err := client.RecommendDoctors(testContext(t), domain.RecommendRequest{
		TCNumber: "12345678901", Department: "Cardiology", PreferredDate: "2026-10-15",
	})
	require.NoError(t, err)

	assert.Equal(t, "/patient/recommend", got.Path)
	assert.Equal(t, "2026-10-15", got.Body["preferred_date"])
	require.Len(t, rec.AvailableDoctors, 3)
	assert.Nil(t, rec.AvailableDoctors[0].AvailableSlots)
	assert.NotNil(t, rec.AvailableDoctors[1].AvailableSlots)
	assert.Empty(t, rec.AvailableDoctors[1].AvailableSlots)
	assert.Equal(t, 7, rec.AvailableDoctors[2].ID)
}

func TestCreateAppointment(t *testing.T) {
	server, got := newTestServer(t, http.StatusOK, `{
		"success": true, "appointment_id": 3, "department": "Cardiology",
		"appointment_date": "2026-10-15 9:00", "doctor_name": "Dr. Emma Wilson"
	}`)
	client := NewClient(server.URL)

	created, err := client.CreateAppointment(testContext(t), domain.CreateAppointmentRequest{
		TCNumber: "12345678901", Department: "Cardiology", DoctorID: 2, AppointmentDate: "2026-10-15 9:00",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/appointment/create", got.Path)
	assert.Equal(t, float64(2), got.Body["doctor_id"])
	assert.Equal(t, domain.Appointment{ID: 3, Department: "Cardiology", Date: "2026-10-15 9:00", Doctor: "Dr. Emma Wilson"}, created.Appointment())
}

func TestCreateAppointmentNotConfirmed(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"success": false}`)
	client := NewClient(server.URL)

	_, err := client.CreateAppointment(testContext(t), domain.CreateAppointmentRequest{TCNumber: "12345678901"})
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestUpdateAppointment(t *testing.T) {
	server, got := newTestServer(t, http.StatusOK, `{"success": true, "message": "Appointment updated successfully"}`)
	client := NewClient(server.URL)

	conf, err := client.UpdateAppointment(testContext(t), domain.UpdateAppointmentRequest{
		TCNumber: "12345678901", AppointmentID: 1, NewDate: "2026-10-15 14:00",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/appointment/update", got.Path)
	assert.Equal(t, float64(1), got.Body["appointment_id"])
	assert.Equal(t, "2026-10-15 14:00", got.Body["new_date"])
	assert.True(t, conf.Success)
}

func TestCancelAppointmentSendsBodyWithDelete(t *testing.T) {
	server, got := newTestServer(t, http.StatusOK, `{"success": true}`)
	client := NewClient(server.URL)

	_, err := client.CancelAppointment(testContext(t), domain.CancelAppointmentRequest{
		TCNumber: "12345678901", AppointmentID: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, got.Method)
	assert.Equal(t, "/appointment/cancel", got.Path)
	assert.Equal(t, float64(4), got.Body["appointment_id"])
}

func TestListAppointments(t *testing.T) {
	server, got := newTestServer(t, http.StatusOK, `{"appointments": [
		{"id": 1, "department": "ENT", "date": "2026-10-15 10:00", "doctor": "Dr. John Smith"}
	]}`)
	client := NewClient(server.URL)

	list, err := client.ListAppointments(testContext(t), "12345678901")
	require.NoError(t, err)

	assert.Equal(t, "/patient/12345678901/appointments", got.Path)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ID)
}

func TestAPIErrorCarriesDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"string detail", http.StatusNotFound, `{"detail": "Patient not found"}`, "Patient not found"},
		{"validation detail", http.StatusUnprocessableEntity, `{"detail": [{"loc": ["body"]}]}`, `[{"loc": ["body"]}]`},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, tt.status, tt.body)
			client := NewClient(server.URL)

			_, err := client.ListAppointments(testContext(t), "12345678901")

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, ExchangeList, apiErr.Exchange)
			assert.Equal(t, tt.detail, apiErr.Detail)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"appointments": [`)
	client := NewClient(server.URL)

	_, err := client.ListAppointments(testContext(t), "12345678901")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode list_appointments response")
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url)
	_, err := client.FetchHistory(testContext(t), "12345678901")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to call clinic history")
}

func TestMetricsRecordOutcome(t *testing.T) {
	m := metrics.NewCollector()
	ok, _ := newTestServer(t, http.StatusOK, `{"warnings": [], "initial_treatment": [], "recommended_departments": []}`)
	bad, _ := newTestServer(t, http.StatusInternalServerError, `{"detail": "boom"}`)

	_, err := NewClient(ok.URL, WithMetrics(m)).Diagnose(testContext(t), domain.DiagnoseRequest{})
	require.NoError(t, err)
	_, err = NewClient(bad.URL, WithMetrics(m)).Diagnose(testContext(t), domain.DiagnoseRequest{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangesTotal.WithLabelValues(ExchangeDiagnose, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExchangesTotal.WithLabelValues(ExchangeDiagnose, "error")))
}
