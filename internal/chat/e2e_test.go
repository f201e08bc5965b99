package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/clinic-assistant/internal/clinic"
	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// clinicBackend is a minimal in-memory clinic API.
type clinicBackend struct {
	mu           sync.Mutex
	symptoms     []string
	appointments []domain.Appointment
	nextID       int
}

func (b *clinicBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}

	mux.HandleFunc("GET /api/patient/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != testPatientID {
			http.Error(w, `{"detail":"Patient not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, domain.Patient{PastConditions: []string{"Migraine"}})
	})
	mux.HandleFunc("POST /api/patient/diagnose", func(w http.ResponseWriter, r *http.Request) {
		var req domain.DiagnoseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad diagnose body: %v", err)
		}
		b.mu.Lock()
		b.symptoms = append(b.symptoms, req.Symptoms)
		b.mu.Unlock()
		writeJSON(w, domain.Diagnosis{
			Warnings:               []string{"Monitor for dehydration"},
			InitialTreatment:       []string{"Rest in a dark room"},
			RecommendedDepartments: []string{"Neurology", "Internal Medicine"},
		})
	})
	mux.HandleFunc("POST /api/patient/recommend", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, domain.Recommendation{AvailableDoctors: []domain.Doctor{
			{Name: "Dr. Sarah Johnson", Specialization: "Neurology"},
		}})
	})
	mux.HandleFunc("POST /api/appointment/create", func(w http.ResponseWriter, r *http.Request) {
		var req domain.CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad create body: %v", err)
		}
		b.mu.Lock()
		b.nextID++
		appt := domain.Appointment{ID: b.nextID, Department: req.Department, Date: req.AppointmentDate, Doctor: "Dr. Sarah Johnson"}
		b.appointments = append(b.appointments, appt)
		b.mu.Unlock()
		writeJSON(w, domain.CreatedAppointment{
			Success:         true,
			AppointmentID:   appt.ID,
			Department:      appt.Department,
			AppointmentDate: appt.Date,
			DoctorName:      appt.Doctor,
		})
	})
	mux.HandleFunc("GET /api/patient/{id}/appointments", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, domain.AppointmentList{Appointments: append([]domain.Appointment{}, b.appointments...)})
	})
	return mux
}

func TestBookingConversationEndToEnd(t *testing.T) {
	backend := &clinicBackend{nextID: 100}
	server := httptest.NewServer(backend.handler(t))
	t.Cleanup(server.Close)

	h := newHarness(t, clinic.NewClient(server.URL+"/api"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.assistant.Login(ctx, "12345678901"))
	assert.Equal(t, []string{msgGreeting}, h.texts())
	cached := len(h.assistant.State().Patient.PastAppointments)

	require.NoError(t, h.assistant.Submit(ctx, "I have a headache and nausea"))
	assert.Equal(t, []string{"I have a headache and nausea"}, backend.symptoms)

	departments := h.lastGroup(t)
	assert.Equal(t, []string{"Neurology", "Internal Medicine"}, labels(departments))

	require.NoError(t, h.assistant.Select(ctx, departments.Options[0].ID))
	slots := h.lastGroup(t)
	assert.Equal(t, "Dr. Sarah Johnson", slots.Title)
	require.Len(t, slots.Options, 6)

	require.NoError(t, h.assistant.Select(ctx, slots.Options[2].ID))

	var confirmation string
	for _, e := range h.log.Entries() {
		if e.Kind == transcript.KindText && strings.HasPrefix(e.Text, "✅") {
			confirmation = e.Text
		}
	}
	assert.Contains(t, confirmation, "Doctor: Dr. Sarah Johnson")
	assert.Contains(t, confirmation, "Department: Neurology")
	assert.Contains(t, confirmation, "Date: 2026-10-15 11:00")
	assert.Contains(t, confirmation, "Appointment ID: 101")
	assert.Len(t, h.assistant.State().Patient.PastAppointments, cached+1)

	require.NoError(t, h.assistant.Select(ctx, h.choice(t, labelView)))
	texts := h.texts()
	assert.Contains(t, texts, "ID: 101\nDoctor: Dr. Sarah Johnson\nDepartment: Neurology\nDate: 2026-10-15 11:00")
}

func TestLoginAgainstUnknownPatient(t *testing.T) {
	backend := &clinicBackend{}
	server := httptest.NewServer(backend.handler(t))
	t.Cleanup(server.Close)
	h := newHarness(t, clinic.NewClient(server.URL+"/api"))

	err := h.assistant.Login(context.Background(), "99999999999")

	var apiErr *clinic.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, []string{msgLoginFailed}, h.notifier.alerts)
	assert.False(t, h.assistant.State().LoggedIn())
}
