package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ecoprint-dashboard/internal/models"
	"ecoprint-dashboard/internal/observability"
)

// ErrNotLoaded is reported before the first load attempt.
var ErrNotLoaded = errors.New("dataset not loaded")

// DefaultRefreshTimeout bounds one refresh once it is detached from its caller.
const DefaultRefreshTimeout = 2 * time.Minute

// Dataset holds the canonical record list. Each successful refresh replaces
// it wholesale; readers always see one complete snapshot.
type Dataset struct {
	mu        sync.RWMutex
	snapshot  *models.Snapshot
	source    Source
	refreshes atomic.Int64
	timeout   time.Duration
	logger    *slog.Logger
}

func NewDataset(source Source, logger *slog.Logger) *Dataset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dataset{
		snapshot: &models.Snapshot{Records: []models.PrintRecord{}, Err: ErrNotLoaded},
		source:   source,
		timeout:  DefaultRefreshTimeout,
		logger:   logger,
	}
}

// SetRefreshTimeout changes how long one refresh may run. Non-positive
// values are ignored.
func (d *Dataset) SetRefreshTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// SetRecords installs an already-normalized record list.
func (d *Dataset) SetRecords(records []models.PrintRecord) {
	d.store(&models.Snapshot{
		Records:  records,
		RawRows:  len(records),
		LoadedAt: time.Now(),
	})
}

// Refresh fetches and normalizes the source. On failure the previous
// records are kept but the snapshot carries the error, so callers show the
// error state rather than stale or partial data. Concurrent refreshes are
// not serialized; the last one to finish wins.
//
// The dataset is shared, so the load does not follow ctx's cancellation: a
// caller that goes away does not abort it. It is bounded by the refresh
// timeout instead.
func (d *Dataset) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "dataset.refresh")
	defer span.FinishAndLog(d.logger)

	if d.source == nil {
		err := fmt.Errorf("refresh: no source configured")
		span.SetError(err)
		d.fail(err)
		return err
	}

	start := time.Now()
	rows, err := d.source.Fetch(ctx)
	if err != nil {
		err = fmt.Errorf("fetch source: %w", err)
		span.SetError(err)
		d.fail(err)
		return err
	}

	records, err := Normalize(ctx, rows)
	if err != nil {
		err = fmt.Errorf("normalize: %w", err)
		span.SetError(err)
		d.fail(err)
		return err
	}

	d.store(&models.Snapshot{
		Records:  records,
		RawRows:  len(rows),
		LoadedAt: time.Now(),
	})
	d.refreshes.Add(1)

	span.SetTag("records", fmt.Sprint(len(records)))
	d.logger.Info("dataset refreshed",
		"raw_rows", len(rows),
		"records", len(records),
		"dropped", len(rows)-len(records),
		"duration", time.Since(start),
	)
	return nil
}

func (d *Dataset) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := *d.snapshot
	next.Err = err
	d.snapshot = &next
	d.logger.Error("dataset refresh failed", "error", err)
}

func (d *Dataset) store(s *models.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = s
}

// Snapshot returns the current dataset. The records must not be modified.
func (d *Dataset) Snapshot() models.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return *d.snapshot
}

// Dashboard derives the filtered views from the current snapshot.
func (d *Dataset) Dashboard(f models.Filter) (models.Dashboard, error) {
	snap := d.Snapshot()
	if snap.Err != nil {
		return models.Dashboard{}, snap.Err
	}
	return BuildDashboard(snap.Records, f), nil
}

// Stats reports monitoring information about the loaded dataset.
func (d *Dataset) Stats() map[string]any {
	snap := d.Snapshot()
	stats := map[string]any{
		"record_count": len(snap.Records),
		"raw_rows":     snap.RawRows,
		"loaded_at":    snap.LoadedAt,
		"refreshes":    d.refreshes.Load(),
		"healthy":      snap.Err == nil,
	}
	if snap.Err != nil {
		stats["last_error"] = snap.Err.Error()
	}
	return stats
}
