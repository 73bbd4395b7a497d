package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/username/navledger/src/config"
	"github.com/username/navledger/src/database"
	"github.com/username/navledger/src/inference"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/models"
	"github.com/username/navledger/src/parsers/flex"
	"github.com/username/navledger/src/reconciliation"
)

// Mode selects how a run treats previously ingested data.
type Mode string

const (
	// ModeAppend inserts new records on top of the existing ledger. Records
	// already present are skipped by idempotency key.
	ModeAppend Mode = "append"
	// ModeRebuild clears derived ledger state and re-ingests from scratch.
	// Posted journal entries are never cleared.
	ModeRebuild Mode = "rebuild"
)

// RunResult reports what one pipeline run ingested and derived.
type RunResult struct {
	Normalized        map[ExportKind]int
	Skipped           map[ExportKind]int
	EventsInserted    int
	SyntheticInserted int
	Reconciliation    *reconciliation.Result
}

// Pipeline runs one full statement cycle: load exports, normalize, persist,
// infer unreported option lifecycle events, then reconcile daily NAV.
type Pipeline struct {
	cfg        *config.AppConfig
	normalizer *Normalizer
	inferencer *inference.Inferencer
	aggregator *reconciliation.Aggregator
}

func NewPipeline(cfg *config.AppConfig, prices inference.PriceSource) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		normalizer: NewNormalizer(cfg),
		inferencer: inference.NewInferencer(cfg, prices),
		aggregator: reconciliation.NewAggregator(cfg),
	}
}

// Run executes one cycle. A missing or unreadable required export aborts the
// run before any write; missing optional exports only narrow what the run
// can derive.
func (p *Pipeline) Run(mode Mode) (*RunResult, error) {
	reports, err := p.loadExports()
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Normalized: make(map[ExportKind]int),
		Skipped:    make(map[ExportKind]int),
	}
	events, navRows := p.normalizeAll(reports, result)

	if mode == ModeRebuild {
		if err := database.ClearLedger(); err != nil {
			return nil, fmt.Errorf("pipeline: failed to clear ledger for rebuild: %w", err)
		}
		logger.L.Info("Cleared derived ledger state for rebuild")
	}

	inserted, err := database.InsertEvents(events)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to insert events: %w", err)
	}
	result.EventsInserted = inserted
	logger.L.Info("Ingested broker events", "normalized", len(events), "inserted", inserted, "duplicates", len(events)-inserted)

	synthetic, err := p.inferSynthetics(navRows)
	if err != nil {
		return nil, err
	}
	result.SyntheticInserted = synthetic

	reconResult, err := p.aggregator.Aggregate(navRows)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reconciliation failed: %w", err)
	}
	result.Reconciliation = reconResult

	logger.L.Info("Pipeline run complete",
		"mode", string(mode),
		"eventsInserted", result.EventsInserted,
		"syntheticInserted", result.SyntheticInserted,
		"summaries", len(reconResult.Summaries),
		"discrepancies", reconResult.Discrepancies)
	return result, nil
}

// loadExports opens and parses one file per export kind from the source
// directory. Required kinds abort on absence or parse failure.
func (p *Pipeline) loadExports() (map[ExportKind]*flex.FlexQueryResponse, error) {
	reports := make(map[ExportKind]*flex.FlexQueryResponse)
	for _, kind := range allKinds {
		path := filepath.Join(p.cfg.SourceDir, kind.Filename())
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				if kind.Required() {
					return nil, fmt.Errorf("%w: %s (%s)", ErrMissingRequiredInput, kind, path)
				}
				logger.L.Warn("Optional export missing, continuing without it",
					"kind", string(kind), "path", path, "error", fmt.Errorf("%w: %s", ErrMissingOptionalInput, kind))
				continue
			}
			return nil, fmt.Errorf("pipeline: failed to open %s export: %w", kind, err)
		}

		response, err := flex.Parse(file)
		file.Close()
		if err != nil {
			if kind.Required() {
				return nil, fmt.Errorf("pipeline: failed to parse required %s export: %w", kind, err)
			}
			logger.L.Warn("Optional export unparseable, continuing without it", "kind", string(kind), "error", err)
			continue
		}
		reports[kind] = response
	}
	return reports, nil
}

// normalizeAll flattens every statement of every loaded export into canonical
// events plus the broker's NAV rows.
func (p *Pipeline) normalizeAll(reports map[ExportKind]*flex.FlexQueryResponse, result *RunResult) ([]models.ChronologicalEvent, []models.NAVRow) {
	var events []models.ChronologicalEvent
	var navRows []models.NAVRow

	collect := func(kind ExportKind, converted []models.ChronologicalEvent, skipped int) {
		events = append(events, converted...)
		result.Normalized[kind] += len(converted)
		result.Skipped[kind] += skipped
	}

	for kind, report := range reports {
		for _, stmt := range report.FlexStatements {
			switch kind {
			case KindTrades:
				converted, skipped := p.normalizer.NormalizeTrades(stmt.Trades)
				collect(kind, converted, skipped)
			case KindCash:
				converted, skipped := p.normalizer.NormalizeCashTransactions(stmt.CashTransactions)
				collect(kind, converted, skipped)
			case KindNAV:
				rows, skipped := p.normalizer.NormalizeNAV(stmt.ChangeInNAVs)
				navRows = append(navRows, rows...)
				result.Normalized[kind] += len(rows)
				result.Skipped[kind] += skipped
			case KindExercises:
				converted, skipped := p.normalizer.NormalizeExercises(stmt.OptionEAEs)
				collect(kind, converted, skipped)
			case KindInterest:
				converted, skipped := p.normalizer.NormalizeInterestAccruals(stmt.InterestAccruals)
				collect(kind, converted, skipped)
			}
		}
	}
	return events, navRows
}

// inferSynthetics runs assignment/expiration inference over the full stored
// ledger, so positions opened in earlier runs are still seen, and inserts
// whatever the broker did not report itself.
func (p *Pipeline) inferSynthetics(navRows []models.NAVRow) (int, error) {
	stored, err := database.AllEvents()
	if err != nil {
		return 0, fmt.Errorf("pipeline: failed to load stored events for inference: %w", err)
	}
	eventDates, err := database.EventDates()
	if err != nil {
		return 0, fmt.Errorf("pipeline: failed to load event dates for inference: %w", err)
	}

	dates := datesForInference(eventDates, navRows)
	reported := inference.NewReportedKeys(stored)
	synthetic := p.inferencer.Infer(stored, dates, reported)
	if len(synthetic) == 0 {
		return 0, nil
	}

	inserted, err := database.InsertEvents(synthetic)
	if err != nil {
		return 0, fmt.Errorf("pipeline: failed to insert synthetic events: %w", err)
	}
	logger.L.Info("Inferred unreported option lifecycle events", "synthesized", len(synthetic), "inserted", inserted)
	return inserted, nil
}

func datesForInference(eventDates []string, navRows []models.NAVRow) []string {
	seen := make(map[string]bool, len(eventDates)+len(navRows))
	for _, d := range eventDates {
		seen[d] = true
	}
	for _, r := range navRows {
		seen[r.Date] = true
	}

	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
