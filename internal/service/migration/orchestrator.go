package migration

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
	"scielocore/internal/queue"
	"scielocore/internal/service/idprovider"
	"scielocore/internal/xmlsps"
)

// Orchestrator drives migration rows through CREATED, XML and MIGRATED,
// pulling content from the configured sources and delegating identifier
// assignment to the id provider pipeline.
type Orchestrator struct {
	migrations repositories.MigrationStore
	documents  repositories.DocumentStore
	pipeline   *idprovider.Pipeline
	sources    []PullSource
	jobs       *queue.Pool
	logger     *slog.Logger
}

func NewOrchestrator(
	migrations repositories.MigrationStore,
	documents repositories.DocumentStore,
	pipeline *idprovider.Pipeline,
	sources []PullSource,
	jobs *queue.Pool,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		migrations: migrations,
		documents:  documents,
		pipeline:   pipeline,
		sources:    sources,
		jobs:       jobs,
		logger:     logger,
	}
}

// RegisterMigration records one descriptor as a CREATED row. Re-running
// a seed file is safe: with skipUpdate an existing row is left alone,
// without it the descriptor fields are refreshed but the row's progress
// (status, xml, v3) is kept.
func (o *Orchestrator) RegisterMigration(ctx context.Context, d models.MigrationDescriptor, skipUpdate bool) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("descriptor %s: %w", d.V2, err)
	}

	existing, err := o.migrations.Get(ctx, d.V2)
	switch {
	case err == nil:
		if skipUpdate {
			return nil
		}
	case errors.Is(err, domain.ErrNotFound):
		existing = &models.Migration{Status: models.MigrationStatusCreated}
	default:
		return fmt.Errorf("get migration %s: %w", d.V2, err)
	}

	existing.V2 = d.V2
	existing.AopPid = d.AopPid
	existing.IsAop = d.IsAop
	existing.FilePath = d.FilePath
	existing.ISSN = d.ISSN
	existing.Year = d.Year
	existing.Order = d.Order
	existing.V91 = d.V91
	existing.V93 = d.V93

	if err := o.migrations.Save(ctx, existing); err != nil {
		return fmt.Errorf("save migration %s: %w", d.V2, err)
	}
	return nil
}

// RegisterFromJSONL registers every descriptor in a JSONL stream and
// returns the sorted distinct ISSNs seen, for the follow-up per-journal
// commands. Bad lines are logged and skipped.
func (o *Orchestrator) RegisterFromJSONL(ctx context.Context, r io.Reader, skipUpdate bool) ([]string, error) {
	seen := map[string]bool{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var d models.MigrationDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			o.logger.Error("bad descriptor line", "line", line, "error", err)
			continue
		}
		if err := o.RegisterMigration(ctx, d, skipUpdate); err != nil {
			o.logger.Error("register failed", "line", line, "v2", d.V2, "error", err)
			continue
		}
		seen[d.ISSN] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}

	issns := make([]string, 0, len(seen))
	for issn := range seen {
		issns = append(issns, issn)
	}
	sort.Strings(issns)
	return issns, nil
}

// PullXML moves one CREATED row to XML by trying each source in order.
// Every source failing marks the row FAILED with the combined reasons.
func (o *Orchestrator) PullXML(ctx context.Context, m *models.Migration) error {
	var reasons []error
	for _, src := range o.sources {
		content, err := src.Pull(ctx, m)
		if err != nil {
			reasons = append(reasons, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		m.XML = content
		m.Source = src.Name()
		m.Status = models.MigrationStatusXML
		m.StatusMsg = ""
		return o.migrations.Save(ctx, m)
	}
	err := fmt.Errorf("%w: %v", domain.ErrPullXMLFailed, errors.Join(reasons...))
	o.fail(ctx, m, err)
	return err
}

// RequestID runs the id provider pipeline on one XML row and moves it to
// MIGRATED, recording the assigned v3. Identifiers the descriptor knows
// and the legacy XML lacks are filled in before the call.
func (o *Orchestrator) RequestID(ctx context.Context, m *models.Migration) error {
	if m.XML == "" {
		err := fmt.Errorf("migration %s has no xml", m.V2)
		o.fail(ctx, m, err)
		return err
	}
	facts, err := xmlsps.ExtractFacts(m.XML)
	if err != nil {
		o.fail(ctx, m, err)
		return err
	}
	if facts.V2 == "" {
		facts.V2 = m.V2
	}
	if facts.AopPid == "" {
		facts.AopPid = m.AopPid
	}
	facts.Normalize()

	res, err := o.pipeline.RequestID(ctx, "migration", facts)
	if err != nil {
		o.fail(ctx, m, err)
		return err
	}

	m.V3 = res.V3
	m.XML = res.XML
	m.Status = models.MigrationStatusMigrated
	m.StatusMsg = ""
	if err := o.migrations.Save(ctx, m); err != nil {
		return fmt.Errorf("save migration %s: %w", m.V2, err)
	}
	return nil
}

// Migrate runs one row end to end: pull, then id request.
func (o *Orchestrator) Migrate(ctx context.Context, m *models.Migration) error {
	if m.Status == models.MigrationStatusCreated || m.Status == models.MigrationStatusFailed {
		if err := o.PullXML(ctx, m); err != nil {
			return err
		}
	}
	return o.RequestID(ctx, m)
}

// UndoIDRequest moves every MIGRATED row of a journal back to XML so the
// id request can be replayed, refreshing the row's XML from the document
// store when the document is registered.
func (o *Orchestrator) UndoIDRequest(ctx context.Context, issn string, isAop bool) error {
	return o.forEach(ctx, issn, isAop, models.MigrationStatusMigrated, func(ctx context.Context, m *models.Migration) error {
		if rec, err := o.documents.GetByV2(ctx, m.V2); err == nil && rec.XML != "" {
			m.XML = rec.XML
		}
		m.Status = models.MigrationStatusXML
		m.StatusMsg = "id request undone"
		if err := o.migrations.Save(ctx, m); err != nil {
			return fmt.Errorf("save migration %s: %w", m.V2, err)
		}
		return nil
	})
}

// MigrateJournal dispatches every pending row of a journal. AOP rows go
// to the high priority lane so their issue successors resolve against
// them.
func (o *Orchestrator) MigrateJournal(ctx context.Context, issn string) error {
	for _, isAop := range []bool{true, false} {
		priority := queue.Default
		if isAop {
			priority = queue.HighPriority
		}
		for _, status := range []string{models.MigrationStatusCreated, models.MigrationStatusFailed} {
			err := o.forEach(ctx, issn, isAop, status, func(ctx context.Context, m *models.Migration) error {
				row := m
				o.jobs.Enqueue(ctx, priority, func(ctx context.Context) error {
					return o.Migrate(ctx, row)
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// RequestIDForJournal dispatches the id request for every row already
// holding XML.
func (o *Orchestrator) RequestIDForJournal(ctx context.Context, issn string) error {
	for _, isAop := range []bool{true, false} {
		priority := queue.Default
		if isAop {
			priority = queue.HighPriority
		}
		err := o.forEach(ctx, issn, isAop, models.MigrationStatusXML, func(ctx context.Context, m *models.Migration) error {
			row := m
			o.jobs.Enqueue(ctx, priority, func(ctx context.Context) error {
				return o.RequestID(ctx, row)
			})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetXML returns the stored XML of one migration row.
func (o *Orchestrator) GetXML(ctx context.Context, v2 string) (string, error) {
	m, err := o.migrations.Get(ctx, v2)
	if err != nil {
		return "", err
	}
	return m.XML, nil
}

// forEach walks every row matching the filter. All pages are collected
// before any callback runs: callbacks mutate the status the filter
// selects on, which would shift pagination mid-walk otherwise. Callback
// errors are logged per row and never stop the walk.
func (o *Orchestrator) forEach(ctx context.Context, issn string, isAop bool, status string, fn func(context.Context, *models.Migration) error) error {
	var all []*models.Migration
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := o.migrations.ListByStatus(ctx, issn, isAop, status, page)
		if err != nil {
			return fmt.Errorf("list %s/%s page %d: %w", issn, status, page, err)
		}
		all = append(all, rows...)
		if len(rows) < repositories.DefaultPageSize {
			break
		}
	}
	for _, m := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, m); err != nil {
			o.logger.Error("migration step failed", "v2", m.V2, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, m *models.Migration, cause error) {
	m.Status = models.MigrationStatusFailed
	m.StatusMsg = cause.Error()
	if err := o.migrations.Save(ctx, m); err != nil {
		o.logger.Error("could not mark migration failed", "v2", m.V2, "error", err)
	}
}
