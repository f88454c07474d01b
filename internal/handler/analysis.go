// Package handler implements the domain logic behind each job type. Each
// handler runs synchronously inside the worker loop and reports outcomes as
// worker.Failure values rather than raw errors.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wastewise-service/internal/analysis"
	"wastewise-service/internal/entity"
	"wastewise-service/internal/ingest"
	"wastewise-service/internal/worker"
)

// AnalysisInput is the input_data payload of a full_analysis job.
type AnalysisInput struct {
	Property   analysis.Property   `json:"property"`
	Equipment  analysis.Equipment  `json:"equipment"`
	Financials analysis.Financials `json:"financials"`

	LineItems  []LineItemInput `json:"line_items,omitempty"`
	HaulEvents []HaulInput     `json:"haul_events,omitempty"`

	InstallCost     float64 `json:"monitor_install_cost,omitempty"`
	MonitoringCost  float64 `json:"monitor_monthly_cost,omitempty"`
	TargetOccupancy float64 `json:"target_occupancy,omitempty"`
}

type LineItemInput struct {
	SourceFile    string    `json:"source_file"`
	VendorName    string    `json:"vendor_name"`
	InvoiceNumber string    `json:"invoice_number"`
	ServiceDate   time.Time `json:"service_date"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	AmountCents   int64     `json:"amount_cents"`
}

type HaulInput struct {
	OccurredOn time.Time `json:"occurred_on"`
	Tons       float64   `json:"tons"`
	CostCents  int64     `json:"cost_cents"`
}

// IngestSummary is the per-table outcome reported in result_data.
type IngestSummary struct {
	Inserted int      `json:"inserted"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// AnalysisResult is the result_data payload of a completed full_analysis job.
type AnalysisResult struct {
	Recommendations []*analysis.Recommendation `json:"recommendations"`
	ServiceGuidance string                     `json:"service_guidance"`
	OverageGuidance string                     `json:"overage_guidance,omitempty"`

	CostPerDoor     float64  `json:"cost_per_door"`
	YardsPerDoor    float64  `json:"yards_per_door"`
	ProjectedBudget *float64 `json:"projected_budget,omitempty"`

	Capacity           *analysis.CapacityAnalysis   `json:"capacity_analysis,omitempty"`
	PickupOptimization *analysis.PickupOptimization `json:"pickup_optimization,omitempty"`

	LineItems IngestSummary `json:"line_items"`
	Hauls     IngestSummary `json:"haul_events"`
}

// AnalysisHandler ingests a project's invoice and haul data in bulk, then
// runs the recommendation engine over the financial profile.
type AnalysisHandler struct {
	lineItems *ingest.Writer[entity.InvoiceLineItem]
	hauls     *ingest.Writer[entity.HaulEvent]
}

func NewAnalysisHandler(db ingest.DB, chunkSize int) *AnalysisHandler {
	return &AnalysisHandler{
		lineItems: ingest.NewWriter(db, ingest.InvoiceLineItems, chunkSize),
		hauls:     ingest.NewWriter(db, ingest.HaulEvents, chunkSize),
	}
}

func (h *AnalysisHandler) Handle(ctx context.Context, job *entity.Job, rt worker.Runtime) (*worker.Result, error) {
	var input AnalysisInput
	if err := json.Unmarshal(job.Input, &input); err != nil {
		return nil, &worker.Failure{
			Code:    entity.CodeInvalidInput,
			Message: "input_data does not match the full_analysis schema",
		}
	}

	if errs := analysis.Validate(input.Property, input.Equipment, len(input.LineItems)); len(errs) > 0 {
		details, _ := json.Marshal(map[string][]string{"validation_errors": errs})
		return nil, &worker.Failure{
			Code:    entity.CodeInvalidInput,
			Message: "property profile failed validation",
			Details: details,
		}
	}

	rt.Progress(ctx, 10, "validated input", 1, 4)
	if rt.Cancelled(ctx) {
		return nil, worker.ErrCancelled
	}

	now := time.Now().UTC()

	liRes := h.lineItems.Insert(ctx, buildLineItems(job.ProjectID, input.LineItems, now))
	rt.Progress(ctx, 40, "ingested line items", 2, 4)
	if rt.Cancelled(ctx) {
		return nil, worker.ErrCancelled
	}

	prepared := ingest.PrepareHaulEvents(buildHaulEvents(job.ProjectID, input.HaulEvents, now))
	haulRes := h.hauls.Insert(ctx, prepared)
	rt.Progress(ctx, 60, "ingested haul events", 3, 4)
	if rt.Cancelled(ctx) {
		return nil, worker.ErrCancelled
	}

	totalRows := len(input.LineItems) + len(input.HaulEvents)
	totalFailed := liRes.Failed + haulRes.Failed
	if totalRows > 0 && totalFailed == totalRows {
		details, _ := json.Marshal(map[string]any{
			"line_items":  summarize(liRes),
			"haul_events": summarize(haulRes),
		})
		return nil, &worker.Failure{
			Code:    entity.CodeIngestFailed,
			Message: "every ingested row was rejected",
			Details: details,
		}
	}

	result := h.recommend(input)
	result.LineItems = summarize(liRes)
	result.Hauls = summarize(haulRes)

	rt.Progress(ctx, 90, "computed recommendations", 4, 4)

	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &worker.Result{Data: data}, nil
}

func (h *AnalysisHandler) recommend(input AnalysisInput) *AnalysisResult {
	var recs []*analysis.Recommendation

	if rec := analysis.CompactorOptimization(input.Equipment, input.Financials, input.InstallCost, input.MonitoringCost); rec != nil {
		recs = append(recs, rec)
	}
	if rec := analysis.ContaminationPlan(input.Financials, input.Financials.MonthlyCost); rec != nil {
		recs = append(recs, rec)
	}

	var capacity *analysis.CapacityAnalysis
	var pickupOpt *analysis.PickupOptimization
	if input.Property.HasCompactor && input.Equipment.ContainerSizeYards > 0 {
		c := analysis.AnalyzeCompactorCapacity(input.Equipment.ContainerSizeYards, input.Financials.AvgTonsPerHaul)
		capacity = &c
		if input.Equipment.AnnualPickups > 0 {
			pickupOpt = analysis.OptimizePickups(
				input.Equipment.ContainerSizeYards, input.Equipment.AnnualPickups,
				input.Financials.AvgTonsPerHaul, input.Financials.BaseHaulFee)
		}
		if pickupOpt != nil {
			recs = append(recs, pickupOpt.Recommendation())
		}
	}

	recs = append(recs, analysis.BulkStrategy(input.Financials.BulkCharges))
	analysis.Prioritize(recs)

	problems := input.Financials.OveragesPresent || input.Financials.ContaminationCharges > 0

	result := &AnalysisResult{
		Recommendations:    recs,
		ServiceGuidance:    analysis.ServiceLevel(input.Financials, problems),
		CostPerDoor:        analysis.CostPerDoor(input.Financials.MonthlyCost, input.Property.Units),
		Capacity:           capacity,
		PickupOptimization: pickupOpt,
	}

	if input.Property.HasCompactor {
		result.YardsPerDoor = analysis.YardsPerDoorCompactor(input.Equipment.CompactorTons, input.Property.Units)
	} else {
		result.YardsPerDoor = analysis.YardsPerDoorDumpster(
			input.Equipment.DumpsterQty, input.Equipment.DumpsterSize,
			input.Equipment.DumpsterFreqPerWeek, input.Property.Units)
	}

	if input.Financials.AvgMonthlyOverage > 0 {
		freq := analysis.OverageSporadic
		if input.Financials.OveragesPresent {
			freq = analysis.OverageConsistent
		}
		result.OverageGuidance = analysis.OverageStrategy(input.Financials, freq, input.Financials.PickupCostPerHaul)
	}

	if input.Property.Status == analysis.StatusLeaseUp && input.TargetOccupancy > 0 {
		projected := analysis.LeaseUpBudgetProjection(
			input.Property, input.Financials.MonthlyCost,
			input.Property.OccupancyPct, input.TargetOccupancy)
		result.ProjectedBudget = &projected
	}

	return result
}

func buildLineItems(projectID uuid.UUID, in []LineItemInput, now time.Time) []entity.InvoiceLineItem {
	out := make([]entity.InvoiceLineItem, len(in))
	for i, li := range in {
		out[i] = entity.InvoiceLineItem{
			ID:            uuid.New(),
			ProjectID:     projectID,
			SourceFile:    li.SourceFile,
			VendorName:    li.VendorName,
			InvoiceNumber: li.InvoiceNumber,
			ServiceDate:   li.ServiceDate,
			Description:   li.Description,
			Category:      li.Category,
			AmountCents:   li.AmountCents,
			CreatedAt:     now,
		}
	}
	return out
}

func buildHaulEvents(projectID uuid.UUID, in []HaulInput, now time.Time) []entity.HaulEvent {
	out := make([]entity.HaulEvent, len(in))
	for i, h := range in {
		out[i] = entity.HaulEvent{
			ID:         uuid.New(),
			ProjectID:  projectID,
			OccurredOn: h.OccurredOn,
			Tons:       h.Tons,
			CostCents:  h.CostCents,
			CreatedAt:  now,
		}
	}
	return out
}

func summarize[T any](res ingest.Result[T]) IngestSummary {
	s := IngestSummary{Inserted: res.Inserted, Failed: res.Failed}
	for _, re := range res.Errors {
		s.Errors = append(s.Errors, fmt.Sprintf("%v", re.Err))
	}
	return s
}
