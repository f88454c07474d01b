package entity

import (
	"time"

	"github.com/google/uuid"
)

// Line-item categories produced by document extraction.
const (
	CategoryBase          = "base"
	CategoryExtraPickup   = "extra_pickup"
	CategoryContamination = "contamination"
	CategoryOverage       = "overage"
	CategoryFuelSurcharge = "fuel_surcharge"
	CategoryFranchiseFee  = "franchise_fee"
	CategoryAdmin         = "admin"
	CategoryEnvCharge     = "env_charge"
)

// InvoiceLineItem is one charge line extracted from a waste invoice.
// Insertion order is irrelevant; each row stands on its own.
type InvoiceLineItem struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	SourceFile    string    `json:"source_file"`
	VendorName    string    `json:"vendor_name"`
	InvoiceNumber string    `json:"invoice_number"`
	ServiceDate   time.Time `json:"service_date"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	AmountCents   int64     `json:"amount_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// HaulEvent is one compactor/dumpster pickup. DaysSincePrevious is derived
// per project before insertion; the earliest event of a project has none.
type HaulEvent struct {
	ID                uuid.UUID `json:"id"`
	ProjectID         uuid.UUID `json:"project_id"`
	OccurredOn        time.Time `json:"occurred_on"`
	Tons              float64   `json:"tons"`
	CostCents         int64     `json:"cost_cents"`
	DaysSincePrevious *int      `json:"days_since_previous,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
