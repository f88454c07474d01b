package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wastewise-service/internal/analysis"
	"wastewise-service/internal/entity"
	"wastewise-service/internal/worker"
)

// fakeRuntime records progress calls and flips to cancelled on demand.
type fakeRuntime struct {
	progress  []int
	cancelled bool
}

func (rt *fakeRuntime) Progress(ctx context.Context, percent int, step string, stepsCompleted, totalSteps int) {
	rt.progress = append(rt.progress, percent)
}

func (rt *fakeRuntime) Cancelled(ctx context.Context) bool { return rt.cancelled }

// memDB accepts every row unless failAll is set, in which case both the bulk
// path and the per-row fallback reject everything.
type memDB struct {
	failAll bool
	rows    int
}

var errRejected = errors.New("value too long for type character varying")

func (db *memDB) CopyFrom(ctx context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	n := 0
	for src.Next() {
		if _, err := src.Values(); err != nil {
			return 0, err
		}
		n++
	}
	if db.failAll {
		return 0, errRejected
	}
	db.rows += n
	return int64(n), nil
}

func (db *memDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.failAll {
		return pgconn.CommandTag{}, errRejected
	}
	db.rows++
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func analysisJob(t *testing.T, input AnalysisInput) *entity.Job {
	t.Helper()
	data, err := json.Marshal(input)
	if err != nil {
		t.Fatal(err)
	}
	return &entity.Job{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Type:      entity.TypeFullAnalysis,
		Input:     data,
	}
}

func validAnalysisInput() AnalysisInput {
	return AnalysisInput{
		Property: analysis.Property{
			Name:         "Sample Property",
			Units:        250,
			PropertyType: analysis.PropertyGarden,
			OccupancyPct: 92,
			Status:       analysis.StatusStabilized,
			HasCompactor: true,
		},
		Equipment: analysis.Equipment{
			CompactorTons:          45,
			CompactorPickupDaysMax: 10,
		},
		Financials: analysis.Financials{
			MonthlyCost:          12000,
			PickupCostPerHaul:    550,
			ContaminationCharges: 900,
			BulkCharges:          800,
			AvgMonthlyOverage:    300,
			AvgTonsPerHaul:       5.5,
			OveragesPresent:      true,
		},
		LineItems: []LineItemInput{
			{
				InvoiceNumber: "INV-001",
				ServiceDate:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
				Description:   "base service",
				Category:      entity.CategoryBase,
				AmountCents:   1200000,
			},
		},
		HaulEvents: []HaulInput{
			{OccurredOn: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Tons: 5.5, CostCents: 55000},
			{OccurredOn: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Tons: 6.0, CostCents: 55000},
		},
		InstallCost:    200,
		MonitoringCost: 50,
	}
}

func TestAnalysisHandler_Completes(t *testing.T) {
	db := &memDB{}
	h := NewAnalysisHandler(db, 1000)
	rt := &fakeRuntime{}

	res, err := h.Handle(context.Background(), analysisJob(t, validAnalysisInput()), rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}

	if result.LineItems.Inserted != 1 || result.Hauls.Inserted != 2 {
		t.Fatalf("ingest counts wrong: %+v / %+v", result.LineItems, result.Hauls)
	}
	if db.rows != 3 {
		t.Fatalf("expected 3 rows persisted, got %d", db.rows)
	}

	if len(result.Recommendations) == 0 {
		t.Fatal("expected recommendations")
	}
	// 5.5 tons/haul, 10-day interval, $550/haul: monitors beat the thresholds.
	if result.Recommendations[0].Priority != 1 {
		t.Fatalf("recommendations not prioritized: %+v", result.Recommendations[0])
	}
	if result.ServiceGuidance == "" {
		t.Fatal("service guidance missing")
	}
	if result.CostPerDoor != 48 {
		t.Fatalf("cost per door: got %f", result.CostPerDoor)
	}
	if len(rt.progress) == 0 {
		t.Fatal("expected progress reports")
	}
}

func TestAnalysisHandler_UnderUtilizedCompactorYieldsPickupReduction(t *testing.T) {
	input := validAnalysisInput()
	// 4.5 tons per pull in a 30-yard compactor is ~52% utilization.
	input.Equipment.ContainerSizeYards = 30
	input.Equipment.AnnualPickups = 52
	input.Financials.AvgTonsPerHaul = 4.5
	input.Financials.BaseHaulFee = 150

	h := NewAnalysisHandler(&memDB{}, 1000)
	res, err := h.Handle(context.Background(), analysisJob(t, input), &fakeRuntime{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		t.Fatal(err)
	}

	if result.Capacity == nil || result.Capacity.Status != "Under-utilized" {
		t.Fatalf("capacity analysis missing or wrong: %+v", result.Capacity)
	}
	if result.PickupOptimization == nil {
		t.Fatal("expected a pickup optimization for an under-utilized compactor")
	}
	if result.PickupOptimization.RecommendedPickups >= 52 {
		t.Fatalf("expected fewer pickups, got %d", result.PickupOptimization.RecommendedPickups)
	}

	found := false
	for _, rec := range result.Recommendations {
		if rec.Title == "Reduce Pickup Frequency" {
			found = true
			if rec.AnnualSavings <= 0 {
				t.Fatalf("pickup reduction must carry its savings: %+v", rec)
			}
		}
	}
	if !found {
		t.Fatal("pickup reduction missing from the prioritized recommendations")
	}
}

func TestAnalysisHandler_WellUtilizedCompactorHasNoPickupReduction(t *testing.T) {
	input := validAnalysisInput()
	// 7 tons per pull in a 30-yard compactor is ~80% utilization.
	input.Equipment.ContainerSizeYards = 30
	input.Equipment.AnnualPickups = 52
	input.Financials.AvgTonsPerHaul = 7.0
	input.Financials.BaseHaulFee = 150

	h := NewAnalysisHandler(&memDB{}, 1000)
	res, err := h.Handle(context.Background(), analysisJob(t, input), &fakeRuntime{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		t.Fatal(err)
	}
	if result.PickupOptimization != nil {
		t.Fatalf("80%% utilization must not be optimized: %+v", result.PickupOptimization)
	}
	for _, rec := range result.Recommendations {
		if rec.Title == "Reduce Pickup Frequency" {
			t.Fatal("no pickup reduction expected at healthy utilization")
		}
	}
}

func TestAnalysisHandler_InvalidJSONSchema(t *testing.T) {
	h := NewAnalysisHandler(&memDB{}, 1000)

	job := &entity.Job{ID: uuid.New(), Input: json.RawMessage(`{"property": "not an object"}`)}
	_, err := h.Handle(context.Background(), job, &fakeRuntime{})

	var failure *worker.Failure
	if !errors.As(err, &failure) || failure.Code != entity.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT failure, got %v", err)
	}
}

func TestAnalysisHandler_ValidationFailure(t *testing.T) {
	h := NewAnalysisHandler(&memDB{}, 1000)

	input := validAnalysisInput()
	input.Property.Units = 0

	_, err := h.Handle(context.Background(), analysisJob(t, input), &fakeRuntime{})

	var failure *worker.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected a failure, got %v", err)
	}
	if failure.Code != entity.CodeInvalidInput {
		t.Fatalf("expected %s, got %s", entity.CodeInvalidInput, failure.Code)
	}
	if len(failure.Details) == 0 {
		t.Fatal("validation problems must be reported in details")
	}
}

func TestAnalysisHandler_AllRowsRejected(t *testing.T) {
	h := NewAnalysisHandler(&memDB{failAll: true}, 1000)

	_, err := h.Handle(context.Background(), analysisJob(t, validAnalysisInput()), &fakeRuntime{})

	var failure *worker.Failure
	if !errors.As(err, &failure) || failure.Code != entity.CodeIngestFailed {
		t.Fatalf("expected INGEST_FAILED, got %v", err)
	}
}

func TestAnalysisHandler_PartialIngestStillCompletes(t *testing.T) {
	// No rows at all: ingest is vacuously fine, analysis still runs.
	input := validAnalysisInput()
	input.HaulEvents = nil

	h := NewAnalysisHandler(&memDB{}, 1000)
	res, err := h.Handle(context.Background(), analysisJob(t, input), &fakeRuntime{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		t.Fatal(err)
	}
	if result.Hauls.Inserted != 0 || result.LineItems.Inserted != 1 {
		t.Fatalf("unexpected ingest counts: %+v / %+v", result.LineItems, result.Hauls)
	}
}

func TestAnalysisHandler_CancelledAtCheckpoint(t *testing.T) {
	h := NewAnalysisHandler(&memDB{}, 1000)
	rt := &fakeRuntime{cancelled: true}

	_, err := h.Handle(context.Background(), analysisJob(t, validAnalysisInput()), rt)
	if !errors.Is(err, worker.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
