package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/session"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

const testPatientID = "12345678901"

var errBackend = errors.New("backend unavailable")

// fakeGateway records every request and answers with canned values.
type fakeGateway struct {
	mu sync.Mutex

	calls []string

	patient    *domain.Patient
	historyErr error

	diagnosis    *domain.Diagnosis
	diagnoseErr  error
	diagnoseReqs []domain.DiagnoseRequest

	recommendation *domain.Recommendation
	recommendErr   error
	recommendReqs  []domain.RecommendRequest

	created    *domain.CreatedAppointment
	createErr  error
	createReqs []domain.CreateAppointmentRequest

	updateErr  error
	updateReqs []domain.UpdateAppointmentRequest

	cancelErr  error
	cancelReqs []domain.CancelAppointmentRequest

	appointments []domain.Appointment
	listErr      error

	gates map[string]*gate
}

// gate parks an exchange until release is closed.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

// block makes calls to the named exchange wait on the returned gate.
func (g *fakeGateway) block(name string) *gate {
	gt := &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]*gate)
	}
	g.gates[name] = gt
	return gt
}

func (g *fakeGateway) wait(name string) {
	g.mu.Lock()
	gt := g.gates[name]
	g.mu.Unlock()
	if gt == nil {
		return
	}
	select {
	case gt.entered <- struct{}{}:
	default:
	}
	<-gt.release
}

// await waits until an exchange is parked on gt.
func (gt *gate) await(t *testing.T) {
	t.Helper()
	select {
	case <-gt.entered:
	case <-time.After(time.Second):
		t.Fatal("exchange never started")
	}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		patient: &domain.Patient{
			PastConditions: []string{"Migraine"},
			Medications: []domain.Medication{
				{Name: "Beloc", Dosage: "50mg", Frequency: "once daily", Status: domain.MedicationActive},
			},
			PastAppointments: []domain.Appointment{
				{ID: 1, Department: "Neurology", Date: "2024-01-15", Doctor: "Dr. Sarah Johnson"},
				{ID: 2, Department: "Cardiology", Date: "2024-02-20", Doctor: "Dr. Michael Chen"},
			},
		},
		diagnosis: &domain.Diagnosis{
			Warnings:               []string{"Seek care if pain is severe"},
			InitialTreatment:       []string{"Rest", "Hydrate"},
			RecommendedDepartments: []string{"cardiology", "neurology"},
		},
		recommendation: &domain.Recommendation{
			AvailableDoctors: []domain.Doctor{
				{Name: "Dr. Michael Chen", AvailableSlots: []string{"9:00", "14:00"}},
				{Name: "Dr. Emily Brown", AvailableSlots: []string{"10:00"}},
			},
		},
		created: &domain.CreatedAppointment{
			Success:         true,
			AppointmentID:   3,
			Department:      "cardiology",
			AppointmentDate: "2026-10-15 9:00",
			DoctorName:      "Dr. Michael Chen",
		},
	}
}

func (g *fakeGateway) record(name string) {
	g.calls = append(g.calls, name)
}

func (g *fakeGateway) callCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (g *fakeGateway) FetchHistory(ctx context.Context, patientID string) (*domain.Patient, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("history")
	if g.historyErr != nil {
		return nil, g.historyErr
	}
	return g.patient.Clone(), nil
}

func (g *fakeGateway) Diagnose(ctx context.Context, req domain.DiagnoseRequest) (*domain.Diagnosis, error) {
	g.wait("diagnose")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("diagnose")
	g.diagnoseReqs = append(g.diagnoseReqs, req)
	if g.diagnoseErr != nil {
		return nil, g.diagnoseErr
	}
	d := *g.diagnosis
	return &d, nil
}

func (g *fakeGateway) RecommendDoctors(ctx context.Context, req domain.RecommendRequest) (*domain.Recommendation, error) {
	g.wait("recommend")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("recommend")
	g.recommendReqs = append(g.recommendReqs, req)
	if g.recommendErr != nil {
		return nil, g.recommendErr
	}
	r := *g.recommendation
	return &r, nil
}

func (g *fakeGateway) CreateAppointment(ctx context.Context, req domain.CreateAppointmentRequest) (*domain.CreatedAppointment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create")
	g.createReqs = append(g.createReqs, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	c := *g.created
	return &c, nil
}

func (g *fakeGateway) UpdateAppointment(ctx context.Context, req domain.UpdateAppointmentRequest) (*domain.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("update")
	g.updateReqs = append(g.updateReqs, req)
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	return &domain.Confirmation{Success: true}, nil
}

func (g *fakeGateway) CancelAppointment(ctx context.Context, req domain.CancelAppointmentRequest) (*domain.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("cancel")
	g.cancelReqs = append(g.cancelReqs, req)
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	return &domain.Confirmation{Success: true}, nil
}

func (g *fakeGateway) ListAppointments(ctx context.Context, patientID string) ([]domain.Appointment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("list")
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]domain.Appointment(nil), g.appointments...), nil
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu        sync.Mutex
	loggedIn  []string
	loggedOut []string
	summaries []domain.PatientSummary
	alerts    []string
}

func (n *recordingNotifier) LoggedIn(patientID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loggedIn = append(n.loggedIn, patientID)
}

func (n *recordingNotifier) LoggedOut(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loggedOut = append(n.loggedOut, reason)
}

func (n *recordingNotifier) PatientUpdated(summary domain.PatientSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
}

func (n *recordingNotifier) Alert(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
}

func (n *recordingNotifier) logoutReasons() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.loggedOut...)
}

type harness struct {
	assistant *Assistant
	gateway   *fakeGateway
	log       *transcript.Log
	notifier  *recordingNotifier
}

func newHarness(t *testing.T, gw Gateway) *harness {
	t.Helper()
	return newHarnessWithConfig(t, gw, Config{SessionID: "sess_test", IdleTimeout: time.Minute, CallTimeout: time.Second})
}

func newHarnessWithConfig(t *testing.T, gw Gateway, cfg Config) *harness {
	t.Helper()
	h := &harness{
		log:      transcript.NewLog(),
		notifier: &recordingNotifier{},
	}
	if fake, ok := gw.(*fakeGateway); ok {
		h.gateway = fake
	}
	h.assistant = New(cfg, gw, h.log, h.notifier, nil, nil)
	h.assistant.now = func() time.Time {
		return time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	}
	t.Cleanup(h.assistant.Close)
	return h
}

// loggedIn returns a harness whose patient is already logged in.
func loggedIn(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, newFakeGateway())
	require.NoError(t, h.assistant.Login(context.Background(), testPatientID))
	return h
}

// withDepartment logs in and selects a department directly.
func withDepartment(t *testing.T, dept string) *harness {
	t.Helper()
	h := loggedIn(t)
	h.assistant.session.Update(func(st *session.State) { st.Department = dept })
	return h
}

// texts returns the text of every entry, in order.
func (h *harness) texts() []string {
	var out []string
	for _, e := range h.log.Entries() {
		if e.Kind == transcript.KindText {
			out = append(out, e.Text)
		}
	}
	return out
}

// since returns the entries appended after the first n.
func (h *harness) since(n int) []transcript.Entry {
	entries := h.log.Entries()
	if n > len(entries) {
		return nil
	}
	return entries[n:]
}

// lastGroup returns the newest choice group.
func (h *harness) lastGroup(t *testing.T) *transcript.ChoiceGroup {
	t.Helper()
	entries := h.log.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == transcript.KindChoices {
			return entries[i].Choices
		}
	}
	t.Fatal("no choice group in transcript")
	return nil
}

// choice returns the id of the newest option labelled label.
func (h *harness) choice(t *testing.T, label string) string {
	t.Helper()
	entries := h.log.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind != transcript.KindChoices {
			continue
		}
		for _, c := range entries[i].Choices.Options {
			if c.Label == label {
				return c.ID
			}
		}
	}
	t.Fatalf("no option labelled %q", label)
	return ""
}

func labels(group *transcript.ChoiceGroup) []string {
	out := make([]string, 0, len(group.Options))
	for _, c := range group.Options {
		out = append(out, c.Label)
	}
	return out
}
