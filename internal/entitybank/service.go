package entitybank

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counterpartyd/internal/audit"
	"github.com/fyrsmithlabs/counterpartyd/internal/normalize"
)

const instrumentationName = "github.com/fyrsmithlabs/counterpartyd/internal/entitybank"

// minObservationKeyRunes is the shortest canonical key an observation may
// create. Shorter keys are near-certain extraction noise.
const minObservationKeyRunes = 3

// Config assembles a Service.
type Config struct {
	// Store is the loaded two-tier store. Required.
	Store *Store

	// Audit receives one event per applied mutation. Optional.
	Audit *audit.Trail

	// CacheTTL bounds lookup memoization. Zero or negative disables the
	// memo entirely.
	CacheTTL time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Service is the synchronous entity bank API: analyst mutations, pipeline
// learning, and the read paths the classifier and report stages consume.
//
// All operations complete on the calling goroutine before returning;
// every applied mutation has durably persisted the affected tier(s) by
// the time the call comes back. A single RWMutex serializes mutations
// against reads, which also covers the per-tier serialization the store
// files need within this process.
type Service struct {
	store   *Store
	matcher *matcher
	trail   *audit.Trail
	logger  *zap.Logger
	tracer  trace.Tracer

	mu     sync.RWMutex
	closed bool
}

// NewService validates cfg and returns a ready service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:   cfg.Store,
		matcher: newMatcher(cfg.Store, cfg.CacheTTL),
		trail:   cfg.Audit,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
	}, nil
}

// Flag upserts an analyst flag in the project tier, keyed by the
// normalized name. Creation fills display name and source "user"; updates
// overwrite entity type and notes only when non-empty and apply Flagged
// verbatim, so Flagged=false doubles as an unflag vector. The project
// tier is persisted before returning.
//
// With PropagateGlobal set and a global tier configured, the flag is
// mirrored into an independent global record: created with source
// "global", or patched in place (flagged, entity type, updated_at).
// Notes never leave the project tier. Without a configured global tier
// propagation is a silent no-op.
//
// A name that normalizes to empty is absorbed: (nil, nil).
func (s *Service) Flag(ctx context.Context, req FlagRequest) (*Record, error) {
	_, span := s.tracer.Start(ctx, "entitybank.flag")
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("flag").Observe(time.Since(start).Seconds())
	}()

	key := normalize.Key(req.Name)
	span.SetAttributes(
		attribute.String("entity.key", key),
		attribute.Bool("flagged", req.Flagged),
		attribute.Bool("propagate_global", req.PropagateGlobal),
	)
	if key == "" {
		s.logger.Debug("flag skipped: name normalizes to empty", zap.String("name", req.Name))
		recordOperation("flag", nil)
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		recordOperation("flag", ErrServiceClosed)
		return nil, ErrServiceClosed
	}

	rec, ok := s.store.project[key]
	if !ok {
		rec = newRecord(key, normalize.Display(req.Name), SourceUser)
		s.store.project[key] = rec
	}
	if req.EntityType != "" {
		rec.EntityType = req.EntityType
	}
	if req.Notes != "" {
		rec.Notes = req.Notes
	}
	rec.Flagged = req.Flagged
	rec.UpdatedAt = nowStamp()
	s.matcher.flush()

	if err := s.store.Save(TierProject); err != nil {
		err = fmt.Errorf("failed to persist project tier: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("flag", err)
		return nil, err
	}

	if req.PropagateGlobal {
		if err := s.propagateGlobal(rec); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordOperation("flag", err)
			return nil, err
		}
	}

	s.auditEvent(audit.ActionFlag, key, map[string]any{
		"flagged":    req.Flagged,
		"propagated": req.PropagateGlobal && s.store.globalEnabled(),
	})
	s.logger.Info("counterparty flag updated",
		zap.String("key", key),
		zap.Bool("flagged", req.Flagged),
		zap.Bool("created", !ok))

	recordOperation("flag", nil)
	return rec.Clone(), nil
}

// propagateGlobal mirrors a project record's flag into the global tier.
// Caller holds the write lock.
func (s *Service) propagateGlobal(project *Record) error {
	if !s.store.globalEnabled() {
		s.logger.Debug("global tier not configured, skipping propagation",
			zap.String("key", project.Name))
		return nil
	}

	g, ok := s.store.global[project.Name]
	if !ok {
		g = newRecord(project.Name, project.DisplayName, SourceGlobal)
		s.store.global[project.Name] = g
	}
	if project.EntityType != "" {
		g.EntityType = project.EntityType
	}
	g.Flagged = project.Flagged
	g.UpdatedAt = nowStamp()

	if err := s.store.Save(TierGlobal); err != nil {
		return fmt.Errorf("failed to persist global tier: %w", err)
	}
	return nil
}

// Unflag clears the flag on an existing project record. Returns (nil,
// nil) when no record exists; the global tier is never touched and no
// record is ever created.
func (s *Service) Unflag(ctx context.Context, name string) (*Record, error) {
	_, span := s.tracer.Start(ctx, "entitybank.unflag")
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("unflag").Observe(time.Since(start).Seconds())
	}()

	key := normalize.Key(name)
	span.SetAttributes(attribute.String("entity.key", key))
	if key == "" {
		recordOperation("unflag", nil)
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		recordOperation("unflag", ErrServiceClosed)
		return nil, ErrServiceClosed
	}

	rec, ok := s.store.project[key]
	if !ok {
		span.SetAttributes(attribute.Bool("found", false))
		recordOperation("unflag", nil)
		return nil, nil
	}

	rec.Flagged = false
	rec.UpdatedAt = nowStamp()
	s.matcher.flush()

	if err := s.store.Save(TierProject); err != nil {
		err = fmt.Errorf("failed to persist project tier: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("unflag", err)
		return nil, err
	}

	s.auditEvent(audit.ActionUnflag, key, nil)
	s.logger.Info("counterparty unflagged", zap.String("key", key))

	recordOperation("unflag", nil)
	return rec.Clone(), nil
}

// AddAlias attaches an alternate raw name to an existing project record.
// The alias set is deduplicated by normalized form; an alias equal to the
// record's own key is absorbed. Returns (nil, nil) when the record does
// not exist or either name normalizes to empty.
func (s *Service) AddAlias(ctx context.Context, name, alias string) (*Record, error) {
	_, span := s.tracer.Start(ctx, "entitybank.add_alias")
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("alias").Observe(time.Since(start).Seconds())
	}()

	key := normalize.Key(name)
	aliasKey := normalize.Key(alias)
	span.SetAttributes(
		attribute.String("entity.key", key),
		attribute.String("entity.alias", aliasKey),
	)
	if key == "" || aliasKey == "" {
		recordOperation("alias", nil)
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		recordOperation("alias", ErrServiceClosed)
		return nil, ErrServiceClosed
	}

	rec, ok := s.store.project[key]
	if !ok {
		span.SetAttributes(attribute.Bool("found", false))
		recordOperation("alias", nil)
		return nil, nil
	}

	if aliasKey == key {
		recordOperation("alias", nil)
		return rec.Clone(), nil
	}
	for _, existing := range rec.Aliases {
		if normalize.Key(existing) == aliasKey {
			recordOperation("alias", nil)
			return rec.Clone(), nil
		}
	}

	rec.Aliases = append(rec.Aliases, normalize.Display(alias))
	rec.UpdatedAt = nowStamp()
	s.matcher.flush()

	if err := s.store.Save(TierProject); err != nil {
		err = fmt.Errorf("failed to persist project tier: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("alias", err)
		return nil, err
	}

	s.auditEvent(audit.ActionAlias, key, map[string]any{"alias": aliasKey})

	recordOperation("alias", nil)
	return rec.Clone(), nil
}

// Delete removes a project-tier record. Propagated global records stay
// untouched; there is no cascade. Returns false when nothing existed.
func (s *Service) Delete(ctx context.Context, name string) (bool, error) {
	_, span := s.tracer.Start(ctx, "entitybank.delete")
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}()

	key := normalize.Key(name)
	span.SetAttributes(attribute.String("entity.key", key))
	if key == "" {
		recordOperation("delete", nil)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		recordOperation("delete", ErrServiceClosed)
		return false, ErrServiceClosed
	}

	if _, ok := s.store.project[key]; !ok {
		span.SetAttributes(attribute.Bool("found", false))
		recordOperation("delete", nil)
		return false, nil
	}

	delete(s.store.project, key)
	s.matcher.flush()

	if err := s.store.Save(TierProject); err != nil {
		err = fmt.Errorf("failed to persist project tier: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("delete", err)
		return false, err
	}

	s.auditEvent(audit.ActionDelete, key, nil)
	s.logger.Info("counterparty deleted", zap.String("key", key))

	recordOperation("delete", nil)
	return true, nil
}

// LearnFromObservations folds a classification batch into the project
// tier. Entries whose normalized key is empty or shorter than three runes
// are skipped. New keys create records with source "auto"; existing keys
// accumulate counts, amounts and the seen-date range, and take the
// category only when none is set yet. The project tier is persisted once
// for the whole batch. Returns how many entries were applied.
func (s *Service) LearnFromObservations(ctx context.Context, batch []Observation) (int, error) {
	_, span := s.tracer.Start(ctx, "entitybank.learn")
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("learn").Observe(time.Since(start).Seconds())
	}()

	span.SetAttributes(attribute.Int("batch_size", len(batch)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		recordOperation("learn", ErrServiceClosed)
		return 0, ErrServiceClosed
	}

	applied := 0
	for _, obs := range batch {
		key := normalize.Key(obs.Name)
		if key == "" || normalize.KeyLength(key) < minObservationKeyRunes {
			continue
		}

		rec, ok := s.store.project[key]
		if !ok {
			rec = newRecord(key, normalize.Display(obs.Name), SourceAuto)
			s.store.project[key] = rec
		}
		rec.Observe(obs.Category, obs.Amount, obs.Date)
		applied++
	}

	span.SetAttributes(attribute.Int("applied", applied))
	if applied == 0 {
		recordOperation("learn", nil)
		return 0, nil
	}
	s.matcher.flush()

	if err := s.store.Save(TierProject); err != nil {
		err = fmt.Errorf("failed to persist project tier: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("learn", err)
		return 0, err
	}

	s.auditEvent(audit.ActionLearn, "", map[string]any{
		"batch":   len(batch),
		"applied": applied,
	})
	s.logger.Info("observation batch applied",
		zap.Int("batch", len(batch)),
		zap.Int("applied", applied))

	recordOperation("learn", nil)
	return applied, nil
}

// Lookup resolves a raw counterparty name through the staged matcher.
// Returns (nil, nil) when the name normalizes to empty or nothing
// matches; a miss is a result, not an error.
func (s *Service) Lookup(ctx context.Context, raw string) (*Match, error) {
	_, span := s.tracer.Start(ctx, "entitybank.lookup")
	defer span.End()

	key := normalize.Key(raw)
	span.SetAttributes(attribute.String("entity.key", key))

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrServiceClosed
	}

	match := s.matcher.lookup(key)
	if match == nil {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	}

	span.SetAttributes(
		attribute.Bool("found", true),
		attribute.String("stage", string(match.Stage)),
		attribute.String("tier", string(match.Tier)),
	)
	return &Match{Record: match.Record.Clone(), Tier: match.Tier, Stage: match.Stage}, nil
}

// List returns the merged two-tier view. Keys present in both tiers
// surface the project record whole; there is no field-level merging.
// Order: flagged records first, then descending times seen, then key.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	_, span := s.tracer.Start(ctx, "entitybank.list")
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		recordOperation("list", ErrServiceClosed)
		return nil, ErrServiceClosed
	}

	merged := make(map[string]Entry, len(s.store.project)+len(s.store.global))
	for key, rec := range s.store.global {
		merged[key] = Entry{Record: *rec.Clone(), Tier: TierGlobal}
	}
	for key, rec := range s.store.project {
		merged[key] = Entry{Record: *rec.Clone(), Tier: TierProject}
	}

	entries := make([]Entry, 0, len(merged))
	for _, entry := range merged {
		if filter.FlaggedOnly && !entry.Flagged {
			continue
		}
		if filter.EntityType != "" && entry.EntityType != filter.EntityType {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Flagged != entries[j].Flagged {
			return entries[i].Flagged
		}
		if entries[i].TimesSeen != entries[j].TimesSeen {
			return entries[i].TimesSeen > entries[j].TimesSeen
		}
		return entries[i].Name < entries[j].Name
	})

	span.SetAttributes(attribute.Int("result_count", len(entries)))
	recordOperation("list", nil)
	return entries, nil
}

// FlaggedNames returns the normalized keys and normalized aliases of
// every flagged record across both tiers, as a membership set for the
// risk stage.
func (s *Service) FlaggedNames(ctx context.Context) (map[string]struct{}, error) {
	_, span := s.tracer.Start(ctx, "entitybank.flagged_names")
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("flagged_names").Observe(time.Since(start).Seconds())
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		recordOperation("flagged_names", ErrServiceClosed)
		return nil, ErrServiceClosed
	}

	names := make(map[string]struct{})
	for _, records := range []map[string]*Record{s.store.project, s.store.global} {
		for key, rec := range records {
			if !rec.Flagged {
				continue
			}
			names[key] = struct{}{}
			for _, alias := range rec.Aliases {
				if aliasKey := normalize.Key(alias); aliasKey != "" {
					names[aliasKey] = struct{}{}
				}
			}
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(names)))
	recordOperation("flagged_names", nil)
	return names, nil
}

// ReloadGlobal rebuilds the global tier from disk, picking up edits made
// by other workstations. No-op without a configured global tier.
func (s *Service) ReloadGlobal(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "entitybank.reload_global")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		recordOperation("reload", ErrServiceClosed)
		return ErrServiceClosed
	}
	if !s.store.globalEnabled() {
		recordOperation("reload", nil)
		return nil
	}

	if err := s.store.Reload(TierGlobal); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOperation("reload", err)
		return err
	}

	s.matcher.flush()
	s.logger.Info("global tier reloaded", zap.Int("records", len(s.store.global)))

	recordOperation("reload", nil)
	return nil
}

// Stats reports loaded record counts per tier.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrServiceClosed
	}
	return Stats{
		ProjectRecords: len(s.store.project),
		GlobalRecords:  len(s.store.global),
		GlobalEnabled:  s.store.globalEnabled(),
	}, nil
}

// Close stops the service. Further calls return ErrServiceClosed. The
// audit trail has its own Close and is owned by the caller.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.matcher.flush()
	return nil
}

// auditEvent appends a mutation event, best effort. Caller holds the
// write lock; the trail serializes itself.
func (s *Service) auditEvent(action audit.Action, key string, details map[string]any) {
	if s.trail == nil {
		return
	}
	s.trail.Record(action, key, details)
}
