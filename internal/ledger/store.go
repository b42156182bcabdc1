package ledger

import "context"

// Store is pure I/O over the ledger tables. Lists return rows in creation
// order.
type Store interface {
	// InsertSent creates rec or fills the empty fields of an existing record
	// with the same MessageID.
	InsertSent(ctx context.Context, rec DeliveryRecord) error
	// ApplyStatus upserts LastStatus and keeps the first timestamp per
	// lifecycle column. Unknown ids create a minimal record.
	ApplyStatus(ctx context.Context, update StatusUpdate) error
	Get(ctx context.Context, messageID string) (DeliveryRecord, error)
	ListDeliveries(ctx context.Context, periods []string) ([]DeliveryRecord, error)

	AppendConfirmation(ctx context.Context, rec ConfirmationRecord) error
	ListConfirmations(ctx context.Context, periods []string) ([]ConfirmationRecord, error)

	UpsertPending(ctx context.Context, view PendingView) error
	GetPending(ctx context.Context, phone string) (PendingView, error)
}
