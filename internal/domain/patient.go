// Package domain defines the clinic records exchanged with the backend API.
package domain

// Medication statuses reported by the clinic API.
const (
	MedicationActive = "active"
	MedicationPast   = "past"
)

// Patient is the history record returned by the clinic API for one patient.
type Patient struct {
	PastConditions   []string      `json:"past_conditions"`
	Medications      []Medication  `json:"medications"`
	PastAppointments []Appointment `json:"past_appointments"`
}

// Medication is a prescribed medication in a patient's history.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Status    string `json:"status"`
}

// Appointment is a booked or past visit. History records from the backend may
// lack an ID; those can be displayed but never updated or cancelled.
type Appointment struct {
	ID         int    `json:"id,omitempty"`
	Department string `json:"department"`
	Date       string `json:"date"`
	Doctor     string `json:"doctor"`
	Diagnosis  string `json:"diagnosis,omitempty"`
}

// ActiveMedications returns the medications whose status is active.
func (p *Patient) ActiveMedications() []Medication {
	var active []Medication
	for _, m := range p.Medications {
		if m.Status == MedicationActive {
			active = append(active, m)
		}
	}
	return active
}

// RecentAppointments returns at most n of the latest appointments, oldest
// first.
func (p *Patient) RecentAppointments(n int) []Appointment {
	if n <= 0 {
		return nil
	}
	start := len(p.PastAppointments) - n
	if start < 0 {
		start = 0
	}
	return append([]Appointment(nil), p.PastAppointments[start:]...)
}

// FindAppointment returns the cached appointment with the given id.
func (p *Patient) FindAppointment(id int) (Appointment, bool) {
	for _, a := range p.PastAppointments {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}

// Clone returns a deep copy of the patient.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	return &Patient{
		PastConditions:   append([]string(nil), p.PastConditions...),
		Medications:      append([]Medication(nil), p.Medications...),
		PastAppointments: append([]Appointment(nil), p.PastAppointments...),
	}
}
