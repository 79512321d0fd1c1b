package events

import "time"

// TransactionCompleted is published after a transaction and its resulting
// balance have been committed. Amounts travel as canonical decimal strings.
type TransactionCompleted struct {
	EventID       string    `json:"event_id"`
	TransactionID int64     `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Balance       string    `json:"balance"`
	OccurredAt    time.Time `json:"occurred_at"`
}
