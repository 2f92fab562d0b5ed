package ledger

// Wire types for the Pteron points API.

// Project is the project (or user) account as the ledger reports it.
// The balance is authoritative on the ledger side only.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// Transaction is a completed ledger movement. Immutable once created.
type Transaction struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type"` // TRANSFER | BILL_PAYMENT | SYSTEM
	UserID      string `json:"userId"`
	UserName    string `json:"userName,omitempty"`
	ProjectID   string `json:"projectId"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// CreateTransactionRequest is the payload for POST /transactions.
// RequestID is the idempotency key: the ledger rejects a transfer
// re-sent under an already-processed id instead of applying it twice.
type CreateTransactionRequest struct {
	ToUser      string `json:"toUser"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

// Bill is a payment request addressed to a user. Its status lives
// entirely on the ledger; this system only ever creates bills.
type Bill struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"` // PENDING | COMPLETED | REJECTED | FAILED
	CreatedAt   string `json:"createdAt"`
}

// CreateBillRequest is the payload for POST /bills.
type CreateBillRequest struct {
	TargetUser  string `json:"targetUser"`
	Amount      int64  `json:"amount"`
	SuccessURL  string `json:"successUrl"`
	CancelURL   string `json:"cancelUrl"`
	Description string `json:"description,omitempty"`
}

// CreateBillResponse carries the hosted payment page for the payer.
// PaymentURL is a one-time redirect target valid until ExpiresAt.
type CreateBillResponse struct {
	BillID     string `json:"billId"`
	PaymentURL string `json:"paymentUrl"`
	ExpiresAt  string `json:"expiresAt"`
}

type errorBody struct {
	Message string `json:"message"`
}
