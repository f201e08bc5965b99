// Package protocol defines the WebSocket message protocol between clients and ingress.
package protocol

import (
	"time"

	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// Message types from client to ingress
const (
	TypeHello    = "hello"
	TypeLogin    = "login"
	TypeLogout   = "logout"
	TypeMessage  = "message"
	TypeChoice   = "choice"
	TypeActivity = "activity"
)

// Message types from ingress to client
const (
	TypeHelloAck  = "hello_ack"
	TypeHistory   = "history"
	TypeLoggedIn  = "logged_in"
	TypeLoggedOut = "logged_out"
	TypePatient   = "patient"
	TypeEntry     = "entry"
	TypeClear     = "clear"
	TypeAlert     = "alert"
	TypeError     = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
}

// NewBase stamps a message of type t for sessionID with the current time.
func NewBase(t, sessionID string) BaseMessage {
	return BaseMessage{Type: t, Ts: time.Now().UnixMilli(), SessionID: sessionID}
}

// HelloMessage is sent by client to establish connection. A known
// session_id resumes that session.
type HelloMessage struct {
	BaseMessage
	APIKey string `json:"api_key,omitempty"`
}

// HelloAckMessage is sent by ingress after successful hello.
type HelloAckMessage struct {
	BaseMessage
	LoggedIn bool `json:"logged_in"`
}

// LoginMessage is sent by client to attach a patient.
type LoginMessage struct {
	BaseMessage
	PatientID string `json:"patient_id"`
}

// LogoutMessage is sent by client to end the conversation.
type LogoutMessage struct {
	BaseMessage
}

// ChatMessage carries one line of user text.
type ChatMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ChoiceMessage is sent when the user clicks an option.
type ChoiceMessage struct {
	BaseMessage
	ChoiceID string `json:"choice_id"`
}

// ActivityMessage reports user activity that keeps the session alive.
type ActivityMessage struct {
	BaseMessage
	Kind string `json:"kind,omitempty"` // "pointer", "key", "click", "scroll"
}

// HistoryMessage replays the transcript to a newly attached connection.
type HistoryMessage struct {
	BaseMessage
	Entries []transcript.Entry `json:"entries"`
}

// LoggedInMessage is sent after a successful login.
type LoggedInMessage struct {
	BaseMessage
	PatientID string `json:"patient_id"`
}

// LoggedOutMessage tells clients to reset their inputs.
type LoggedOutMessage struct {
	BaseMessage
	Reason string `json:"reason"`
}

// PatientMessage carries the patient card.
type PatientMessage struct {
	BaseMessage
	Summary domain.PatientSummary `json:"summary"`
}

// EntryMessage carries one new transcript entry.
type EntryMessage struct {
	BaseMessage
	Entry transcript.Entry `json:"entry"`
}

// ClearMessage tells clients to drop the rendered transcript.
type ClearMessage struct {
	BaseMessage
}

// AlertMessage is a modal notice outside the transcript.
type AlertMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// ErrorMessage is sent by ingress when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeUnauthorized    = "unauthorized"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeNotLoggedIn     = "not_logged_in"
	ErrorCodeUnknownChoice   = "unknown_choice"
	ErrorCodeInternalError   = "internal_error"
)
