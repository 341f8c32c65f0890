// Package pipeline sequences the import: parse every source file, resolve
// cross references, transform coordinates, load and publish the store. The
// run is idempotent (a present store short-circuits it) and atomic (a failure
// at any stage leaves the previous store, if any, untouched).
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/dat2sqlite-go/internal/config"
	"github.com/wegman-software/dat2sqlite-go/internal/dat"
	"github.com/wegman-software/dat2sqlite-go/internal/logger"
	"github.com/wegman-software/dat2sqlite-go/internal/metrics"
	"github.com/wegman-software/dat2sqlite-go/internal/model"
	"github.com/wegman-software/dat2sqlite-go/internal/proj"
	"github.com/wegman-software/dat2sqlite-go/internal/resolver"
	"github.com/wegman-software/dat2sqlite-go/internal/schema"
	"github.com/wegman-software/dat2sqlite-go/internal/store"
)

// State is the orchestrator's position in the run.
type State int

const (
	StateNotStarted State = iota
	StateParsing
	StateResolving
	StateTransforming
	StateLoading
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateParsing:
		return "parsing"
	case StateResolving:
		return "resolving"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Report summarizes one run for the operator.
type Report struct {
	State           State
	SkippedExisting bool

	// RowsRead per file category, including dropped rows.
	RowsRead map[string]int
	// RowErrors is the number of rows dropped for parse defects.
	RowErrors int
	// TransformErrors is the number of points dropped for numeric transform
	// failures.
	TransformErrors int
	// Warnings counted by kind (DanglingReference, DuplicateIdentifier,
	// CoordinateRange).
	Warnings map[string]int

	Roads         int
	Points        int
	Intersections int
	AdminAreas    int
	Names         int

	Duration time.Duration
}

// Pipeline runs the import for one dataset directory.
type Pipeline struct {
	cfg   *config.Config
	state State
}

// New creates a pipeline for the given configuration.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg, state: StateNotStarted}
}

// State returns the current state.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) fail(report *Report, err error) (*Report, error) {
	p.state = StateFailed
	report.State = StateFailed
	return report, err
}

// Run executes the whole pipeline. The stages run sequentially; nothing
// touches the target store path until the final publish.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	log := logger.Get()
	start := time.Now()
	report := &Report{
		State:    StateNotStarted,
		RowsRead: make(map[string]int),
		Warnings: make(map[string]int),
	}

	// Fast second run: a published store is the completion marker.
	if store.Exists(p.cfg.StorePath) && !p.cfg.Force {
		log.Info("Store already exists, skipping import",
			zap.String("store", p.cfg.StorePath))
		p.state = StateComplete
		report.State = StateComplete
		report.SkippedExisting = true
		report.Duration = time.Since(start)
		return report, nil
	}

	if p.cfg.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()
		collector := metrics.NewCollector(p.cfg.MetricsInterval, log)
		go collector.Start(metricsCtx)
	}

	// Stage 1: parse.
	p.state = StateParsing
	log.Info("Parsing source files", zap.String("dir", p.cfg.DataDir))
	rows, err := p.parseAll(report)
	if err != nil {
		return p.fail(report, err)
	}

	// Stage 2: resolve.
	p.state = StateResolving
	log.Info("Resolving cross references")
	res := resolver.New()
	net, err := res.Resolve(rows)
	if err != nil {
		return p.fail(report, err)
	}
	for _, w := range res.Warnings() {
		report.Warnings[string(w.Kind)]++
		log.Debug("Resolver warning", zap.String("kind", string(w.Kind)),
			zap.String("category", w.Category), zap.String("detail", w.Detail))
	}
	log.Info("Cross references resolved",
		zap.Int("roads", len(net.Roads)),
		zap.Int("points", len(net.Points)),
		zap.Int("admin_areas", len(net.AdminAreas)),
		zap.Int("warnings", len(res.Warnings())))

	// Stage 3: transform.
	p.state = StateTransforming
	log.Info("Transforming coordinates")
	p.transform(net, report)

	// Stage 4: load and publish.
	p.state = StateLoading
	log.Info("Loading store", zap.String("store", p.cfg.StorePath))
	if err := p.load(net); err != nil {
		return p.fail(report, err)
	}

	p.state = StateComplete
	report.State = StateComplete
	report.Roads = len(net.Roads)
	report.Points = len(net.Points)
	report.Intersections = len(net.Intersections)
	report.AdminAreas = len(net.AdminAreas)
	report.Names = len(net.Names)
	report.Duration = time.Since(start)

	p.logSummary(report)
	return report, nil
}

// parseAll reads every recognized .DAT file in the input directory. A .DAT
// file whose name is not in the registry is a structural defect, as is a
// directory with no recognized files at all.
func (p *Pipeline) parseAll(report *Report) (map[string][]dat.Row, error) {
	log := logger.Get()

	entries, err := os.ReadDir(p.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".dat") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, &schema.UnknownFileError{Name: p.cfg.DataDir + " (no .DAT files)"}
	}

	rows := make(map[string][]dat.Row)
	for _, name := range files {
		sch, err := schema.ForFilename(name)
		if err != nil {
			return nil, err
		}

		reader := dat.NewReader(filepath.Join(p.cfg.DataDir, name), sch, p.cfg.Encoding, p.cfg.Strict)
		fileReport, err := reader.Rows(func(row dat.Row) error {
			if sch.Core {
				rows[sch.Category] = append(rows[sch.Category], row)
			}
			return nil
		})
		if fileReport != nil {
			report.RowsRead[sch.Category] = fileReport.RowsRead
			report.RowErrors += fileReport.RowsBad
			for _, rowErr := range fileReport.RowErrors {
				log.Warn("Row dropped", zap.String("file", rowErr.File),
					zap.Int("line", rowErr.Line), zap.Error(rowErr.Err))
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		log.Info("File parsed", zap.String("file", name),
			zap.Int("rows", fileReport.RowsRead),
			zap.Int("dropped", fileReport.RowsBad),
			zap.Bool("core", sch.Core))
	}
	return rows, nil
}

// transform derives WGS84 coordinates for every point. A numeric failure
// drops the affected point only; an implausible but finite result is flagged
// and kept.
func (p *Pipeline) transform(net *model.Network, report *Report) {
	log := logger.Get()

	kept := net.Points[:0]
	for _, point := range net.Points {
		lon, lat, err := proj.EOVToWGS84(point.EovY, point.EovX)
		if err != nil {
			report.TransformErrors++
			delete(net.PointByLCD, point.LCD)
			log.Warn("Point dropped, transform failed",
				zap.Int64("lcd", point.LCD), zap.Error(err))
			continue
		}
		point.Lon = lon
		point.Lat = lat
		if !p.cfg.Envelope.Contains(lon, lat) {
			point.OutOfEnvelope = true
			report.Warnings["CoordinateRange"]++
			log.Debug("Point outside plausibility envelope",
				zap.Int64("lcd", point.LCD),
				zap.Float64("lon", lon), zap.Float64("lat", lat))
		}
		kept = append(kept, point)
	}
	net.Points = kept

	log.Info("Coordinates transformed",
		zap.Int("points", len(net.Points)),
		zap.Int("dropped", report.TransformErrors),
		zap.Int("range_flagged", report.Warnings["CoordinateRange"]))
}

// load writes the network into a temporary store and publishes it by rename.
func (p *Pipeline) load(net *model.Network) error {
	writer, err := store.CreateTemp(p.cfg.StorePath)
	if err != nil {
		return err
	}
	defer writer.Discard()

	if err := writer.WriteNetwork(net); err != nil {
		return err
	}
	return writer.Publish()
}

func (p *Pipeline) logSummary(report *Report) {
	log := logger.Get()

	var totalRows int
	categories := make([]string, 0, len(report.RowsRead))
	for cat, n := range report.RowsRead {
		totalRows += n
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	fields := []zap.Field{
		zap.Int("files", len(categories)),
		zap.Int("rows_read", totalRows),
		zap.Int("rows_dropped", report.RowErrors),
		zap.Int("points_dropped", report.TransformErrors),
		zap.Int("roads", report.Roads),
		zap.Int("points", report.Points),
		zap.Int("intersections", report.Intersections),
		zap.Int("admin_areas", report.AdminAreas),
		zap.Duration("duration", report.Duration.Round(time.Millisecond)),
	}
	for kind, n := range report.Warnings {
		fields = append(fields, zap.Int("warn_"+kind, n))
	}
	log.Info("Import complete", fields...)
}
