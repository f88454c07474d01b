package ingest

import (
	"wastewise-service/internal/entity"
)

// InvoiceLineItems is the table binding for invoice line-item ingestion.
var InvoiceLineItems = Table[entity.InvoiceLineItem]{
	Name: "invoice_line_items",
	Columns: []string{
		"id", "project_id", "source_file", "vendor_name", "invoice_number",
		"service_date", "description", "category", "amount_cents", "created_at",
	},
	Values: func(li entity.InvoiceLineItem) []any {
		return []any{
			li.ID, li.ProjectID, li.SourceFile, li.VendorName, li.InvoiceNumber,
			li.ServiceDate, li.Description, li.Category, li.AmountCents, li.CreatedAt,
		}
	},
}

// HaulEvents is the table binding for haul-event ingestion. Records should
// pass through PrepareHaulEvents first so days_since_previous is populated.
var HaulEvents = Table[entity.HaulEvent]{
	Name: "haul_events",
	Columns: []string{
		"id", "project_id", "occurred_on", "tons", "cost_cents",
		"days_since_previous", "created_at",
	},
	Values: func(h entity.HaulEvent) []any {
		return []any{
			h.ID, h.ProjectID, h.OccurredOn, h.Tons, h.CostCents,
			h.DaysSincePrevious, h.CreatedAt,
		}
	},
}
