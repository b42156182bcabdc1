package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the broadcast notification from the document itself.
type Kind string

const (
	KindTemplate Kind = "template"
	KindDocument Kind = "document"
)

// Transport statuses the ledger timestamps. Any other status only updates
// LastStatus.
const (
	StatusDelivered   = "delivered"
	StatusRead        = "read"
	StatusFailed      = "failed"
	StatusUndelivered = "undelivered"
)

// Confirmation responses.
const (
	ResponseSigned   = "firmado"
	ResponseObjected = "observado"
)

// DeliveryRecord is one outbound message, keyed by the transport id.
// A record created by a status callback before the send was recorded has an
// empty Kind and Recipient until RecordSent fills them.
type DeliveryRecord struct {
	MessageID    string
	Recipient    string
	DocumentID   string
	Period       string
	Kind         Kind
	DisplayName  string
	CreatedAt    time.Time
	LastStatus   string
	ErrorCode    string
	ErrorMessage string
	DeliveredAt  *time.Time
	ReadAt       *time.Time
	FailedAt     *time.Time
	UpdatedAt    time.Time
}

// StatusUpdate is one transport callback.
type StatusUpdate struct {
	MessageID    string
	Status       string
	ErrorCode    string
	ErrorMessage string
	At           time.Time
}

// ConfirmationRecord is an append-only sign/object decision.
type ConfirmationRecord struct {
	ID         uuid.UUID
	Recipient  string
	DocumentID string
	Period     string
	Response   string
	CreatedAt  time.Time
}

// PendingView links a phone to the document its last broadcast announced.
type PendingView struct {
	Phone      string
	DocumentID string
	Period     string
	LinkedAt   time.Time
}

// ReportRow aggregates one (recipient, document, period).
type ReportRow struct {
	Recipient   string
	DisplayName string
	DocumentID  string
	Period      string
	Template    MessageTimes
	Document    MessageTimes
	Response    string
	RespondedAt *time.Time
}

// MessageTimes are the lifecycle timestamps for one kind of message.
type MessageTimes struct {
	SentAt      *time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time
	FailedAt    *time.Time
}

type reportKey struct {
	recipient, documentID, period string
}
