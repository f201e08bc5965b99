package domain

import (
	"fmt"
	"strings"
)

// recentAppointmentCount is how many appointments a summary shows.
const recentAppointmentCount = 2

// PatientSummary is the short patient card shown next to the conversation.
type PatientSummary struct {
	PastConditions     []string      `json:"past_conditions"`
	ActiveMedications  []Medication  `json:"active_medications"`
	RecentAppointments []Appointment `json:"recent_appointments"`
}

// Summarize builds the card: past conditions, active medications only and
// the two most recent appointments.
func Summarize(p *Patient) PatientSummary {
	if p == nil {
		return PatientSummary{}
	}
	return PatientSummary{
		PastConditions:     append([]string(nil), p.PastConditions...),
		ActiveMedications:  p.ActiveMedications(),
		RecentAppointments: p.RecentAppointments(recentAppointmentCount),
	}
}

// String renders the card as plain text.
func (s PatientSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Past Conditions: %s\n", strings.Join(s.PastConditions, ", "))
	b.WriteString("Active Medications:\n")
	for _, m := range s.ActiveMedications {
		fmt.Fprintf(&b, "  - %s (%s, %s)\n", m.Name, m.Dosage, m.Frequency)
	}
	b.WriteString("Recent Appointments:\n")
	for _, a := range s.RecentAppointments {
		fmt.Fprintf(&b, "  - %s: %s - %s\n", a.Date, a.Department, a.Doctor)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
