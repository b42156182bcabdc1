// Package session holds the per-phone conversation state between turns.
package session

import "time"

// FlowState is the step a conversation is waiting on.
type FlowState string

const (
	FlowIdle                  FlowState = "IDLE"
	FlowAwaitingViewConfirm   FlowState = "AWAITING_VIEW_CONFIRM"
	FlowAwaitingSignOrObject  FlowState = "AWAITING_SIGN_OR_OBJECT"
	FlowAwaitingUndoObjection FlowState = "AWAITING_UNDO_OBJECTION"
	FlowWaitingOption         FlowState = "WAITING_OPTION"
)

// Session is keyed by canonical phone. Version increments on every
// successful Save and guards against lost updates.
type Session struct {
	Phone string    `json:"phone"`
	State FlowState `json:"state"`

	// In-flight document, set while a prompt about it is pending.
	DocumentID string `json:"document_id,omitempty"`
	Period     string `json:"period,omitempty"`
	FileRef    string `json:"file_ref,omitempty"`

	Menu *Menu `json:"menu,omitempty"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an idle, unsaved session.
func New(phone string) *Session {
	return &Session{Phone: phone, State: FlowIdle}
}

// Reset returns the session to IDLE and clears the menu and cached document.
func (s *Session) Reset() {
	s.State = FlowIdle
	s.DocumentID = ""
	s.Period = ""
	s.FileRef = ""
	s.Menu = nil
}

// Track caches the in-flight document and moves to state.
func (s *Session) Track(state FlowState, documentID, period, fileRef string) {
	s.State = state
	s.DocumentID = documentID
	s.Period = period
	s.FileRef = fileRef
	s.Menu = nil
}
