package core

import "time"

// Invoice is the canonical invoice record shared by every carrier.
type Invoice struct {
	ID           int64     `json:"id,omitempty"`
	Number       string    `json:"number"`
	Carrier      string    `json:"carrier"`
	CustomerCode string    `json:"customer_code,omitempty"`
	CustomerName string    `json:"customer_name,omitempty"`
	BookingRef   string    `json:"booking_ref,omitempty"`
	IssuedAt     time.Time `json:"issued_at,omitempty"`
	Amount       *float64  `json:"amount,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	Status       string    `json:"status,omitempty"`
}

// Dispute is the canonical dispute record after payload normalization.
type Dispute struct {
	Number            string   `json:"number"`
	InvoiceNumber     string   `json:"invoice_number,omitempty"`
	Status            string   `json:"status"`
	StatusCode        string   `json:"status_code,omitempty"`
	Amount            *float64 `json:"amount,omitempty"`
	Currency          string   `json:"currency,omitempty"`
	ReasonCode        string   `json:"reason_code,omitempty"`
	ReasonDescription string   `json:"reason_description,omitempty"`
	Type              string   `json:"type,omitempty"`
	InvoiceDueDate    string   `json:"invoice_due_date,omitempty"`
	AgentName         string   `json:"agent_name,omitempty"`
	AgentEmail        string   `json:"agent_email,omitempty"`
	Reference         string   `json:"reference,omitempty"`
	AllowSecondReview *bool    `json:"allow_second_review,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	LastModifiedAt    string   `json:"last_modified_at,omitempty"`
	CustomerCode      string   `json:"customer_code,omitempty"`
}

// StoredDispute is a dispute as read back from the repository.
type StoredDispute struct {
	Dispute

	ID        int64     `json:"id"`
	InvoiceID int64     `json:"invoice_id"`
	UpdatedAt time.Time `json:"updated_at"`
	SyncedAt  time.Time `json:"synced_at"`
}

// InvoiceFilter narrows ListInvoices. Zero values mean "no filter".
type InvoiceFilter struct {
	Carrier  string
	Customer string
	Limit    int
}

type Counts struct {
	Invoices int64 `json:"invoices"`
	Disputes int64 `json:"disputes"`
}
