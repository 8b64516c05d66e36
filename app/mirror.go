// Package app contains the MirrorService that copies a kintone app into a
// local store.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/kintone/adapters/metrics"
	"github.com/artpar/kintone/core/query"
	"github.com/artpar/kintone/core/schema"
	"github.com/artpar/kintone/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxOffset is the largest offset kintone accepts.
const MaxOffset = 10000

// ErrRunInProgress is returned when Run is called while a run is active.
var ErrRunInProgress = errors.New("mirror run already in progress")

// MirrorOptions control how records are fetched. They can be swapped while
// the service runs; the next run picks them up.
type MirrorOptions struct {
	// PageSize is the number of records per request, 1 to 500.
	PageSize int
	// Concurrency bounds the pages fetched in parallel.
	Concurrency int
	// Fields restricts the copied fields. $id and $revision are always
	// fetched.
	Fields []string
	// Filter is a query condition; empty copies every record.
	Filter string
	// Prune deletes local records not seen in an unfiltered run.
	Prune bool
	// Interval is the pause between runs in Watch.
	Interval time.Duration
}

// DefaultMirrorOptions returns the options used when none are configured.
func DefaultMirrorOptions() MirrorOptions {
	return MirrorOptions{
		PageSize:    500,
		Concurrency: 4,
		Prune:       true,
		Interval:    15 * time.Minute,
	}
}

// MirrorService copies the form and records of one app into a store.
type MirrorService struct {
	source  ports.RecordSource
	store   ports.MirrorStore
	clock   ports.Clock
	ids     ports.IDGenerator
	metrics *metrics.Collector
	logger  zerolog.Logger

	mu      sync.RWMutex
	opts    MirrorOptions
	running atomic.Bool
}

// NewMirrorService creates a mirror service. m may be nil.
func NewMirrorService(
	source ports.RecordSource,
	store ports.MirrorStore,
	clock ports.Clock,
	ids ports.IDGenerator,
	m *metrics.Collector,
	logger zerolog.Logger,
) *MirrorService {
	return &MirrorService{
		source:  source,
		store:   store,
		clock:   clock,
		ids:     ids,
		metrics: m,
		logger:  logger,
		opts:    DefaultMirrorOptions(),
	}
}

// SetOptions replaces the fetch options. Out-of-range values fall back to
// the defaults.
func (s *MirrorService) SetOptions(opts MirrorOptions) {
	def := DefaultMirrorOptions()
	if opts.PageSize <= 0 || opts.PageSize > 500 {
		opts.PageSize = def.PageSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	opts.Fields = slices.Clone(opts.Fields)

	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// Options returns the current fetch options.
func (s *MirrorService) Options() MirrorOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opts := s.opts
	opts.Fields = slices.Clone(opts.Fields)
	return opts
}

// $id typed as a number so it can be compared and sorted on.
var idField = schema.MustNewField(map[string]any{"type": "RECORD_NUMBER", "code": schema.CodeID})

// Run copies the app once and returns the finished run. The run is stored
// even when it fails.
func (s *MirrorService) Run(ctx context.Context) (ports.MirrorRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return ports.MirrorRun{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	opts := s.Options()
	run := ports.MirrorRun{
		ID:        s.ids.New(),
		AppID:     s.source.AppID(),
		Status:    ports.RunRunning,
		StartedAt: s.clock.Now(),
	}
	logger := s.logger.With().Str("run_id", run.ID).Int64("app", run.AppID).Logger()

	if err := s.store.StartRun(ctx, run); err != nil {
		return run, fmt.Errorf("start run: %w", err)
	}
	logger.Info().Int("page_size", opts.PageSize).Int("concurrency", opts.Concurrency).Msg("mirror run started")

	count, err := s.copy(ctx, run, opts, logger)

	run.Records = count
	run.FinishedAt = s.clock.Now()
	run.Status = ports.RunSucceeded
	if err != nil {
		run.Status = ports.RunFailed
		run.Error = err.Error()
	}
	s.metrics.MirrorRun(strconv.FormatInt(run.AppID, 10), count, run.FinishedAt.Sub(run.StartedAt), err)

	// Record the outcome even when ctx was canceled.
	if ferr := s.store.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		logger.Error().Err(ferr).Msg("failed to store run result")
		if err == nil {
			err = fmt.Errorf("finish run: %w", ferr)
		}
	}

	if err != nil {
		logger.Error().Err(err).Int("records", count).Msg("mirror run failed")
		return run, err
	}
	logger.Info().
		Int("records", count).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("mirror run finished")
	return run, nil
}

func (s *MirrorService) copy(ctx context.Context, run ports.MirrorRun, opts MirrorOptions, logger zerolog.Logger) (int, error) {
	form, err := s.source.Form(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch form: %w", err)
	}
	if err := s.store.SaveForm(ctx, run.AppID, form); err != nil {
		return 0, fmt.Errorf("save form: %w", err)
	}

	fields := fetchFields(opts.Fields)
	filter := query.Raw(opts.Filter)

	q, err := query.New().
		Where(filter).
		OrderBy(idField, true).
		Limit(opts.PageSize).
		Build()
	if err != nil {
		return 0, err
	}
	first, err := s.source.Records(ctx, fields, q, true)
	if err != nil {
		return 0, fmt.Errorf("fetch first page: %w", err)
	}
	if _, err := s.store.UpsertRecords(ctx, run.AppID, first.Records, run.StartedAt); err != nil {
		return 0, fmt.Errorf("store page: %w", err)
	}
	count := len(first.Records)
	logger.Debug().Int64("total", first.TotalCount).Int("fetched", count).Msg("first page stored")

	var rest int
	if first.TotalCount > MaxOffset || first.TotalCount < 0 {
		rest, err = s.copySeek(ctx, run, opts, fields, filter, first.Records)
	} else {
		rest, err = s.copyPages(ctx, run, opts, fields, filter, int(first.TotalCount))
	}
	count += rest
	if err != nil {
		return count, err
	}

	if opts.Prune && opts.Filter == "" {
		deleted, err := s.store.DeleteStale(ctx, run.AppID, run.StartedAt)
		if err != nil {
			return count, fmt.Errorf("prune: %w", err)
		}
		if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Msg("pruned records removed from kintone")
		}
	}
	return count, nil
}

// copyPages fetches the pages after the first one in parallel by offset.
func (s *MirrorService) copyPages(ctx context.Context, run ports.MirrorRun, opts MirrorOptions, fields []string, filter query.Condition, total int) (int, error) {
	var count atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for offset := opts.PageSize; offset < total; offset += opts.PageSize {
		q, err := query.New().
			Where(filter).
			OrderBy(idField, true).
			Limit(opts.PageSize).
			Offset(offset).
			Build()
		if err != nil {
			return 0, err
		}
		g.Go(func() error {
			page, err := s.source.Records(ctx, fields, q, false)
			if err != nil {
				return fmt.Errorf("fetch offset %d: %w", offset, err)
			}
			n, err := s.store.UpsertRecords(ctx, run.AppID, page.Records, run.StartedAt)
			if err != nil {
				return fmt.Errorf("store offset %d: %w", offset, err)
			}
			count.Add(int64(n))
			return nil
		})
	}
	err := g.Wait()
	return int(count.Load()), err
}

// copySeek pages sequentially by $id, for result sets too large for
// offset paging.
func (s *MirrorService) copySeek(ctx context.Context, run ports.MirrorRun, opts MirrorOptions, fields []string, filter query.Condition, page []*schema.Record) (int, error) {
	count := 0
	for len(page) == opts.PageSize {
		lastID, ok := page[len(page)-1].ID()
		if !ok {
			return count, fmt.Errorf("record without %s in page", schema.CodeID)
		}
		q, err := query.New().
			Where(query.And(filter, query.GreaterThan(idField, lastID))).
			OrderBy(idField, true).
			Limit(opts.PageSize).
			Build()
		if err != nil {
			return count, err
		}
		next, err := s.source.Records(ctx, fields, q, false)
		if err != nil {
			return count, fmt.Errorf("fetch after id %d: %w", lastID, err)
		}
		n, err := s.store.UpsertRecords(ctx, run.AppID, next.Records, run.StartedAt)
		if err != nil {
			return count, fmt.Errorf("store after id %d: %w", lastID, err)
		}
		count += n
		page = next.Records
	}
	return count, nil
}

func fetchFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := slices.Clone(fields)
	for _, code := range []string{schema.CodeID, schema.CodeRevision} {
		if !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	return out
}

// Watch runs the mirror until ctx is canceled, waiting the current
// Interval between runs. Failed runs are logged and retried on the next
// tick.
func (s *MirrorService) Watch(ctx context.Context) error {
	for {
		_, err := s.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Warn().Msg("skipping tick, previous run still active")
		}

		timer := time.NewTimer(s.Options().Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
