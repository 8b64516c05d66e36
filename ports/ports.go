// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/kintone/core/schema"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// kintone Ports
// -----------------------------------------------------------------------------

// RecordPage is one page of a records query. TotalCount is -1 when the
// count was not requested.
type RecordPage struct {
	Records    []*schema.Record
	TotalCount int64
}

// RecordSource reads the form and records of one app.
type RecordSource interface {
	// AppID identifies the app.
	AppID() int64

	// Form returns the field definitions keyed by code.
	Form(ctx context.Context) (map[string]*schema.Field, error)

	// Records runs a query. An empty fields list returns every field.
	Records(ctx context.Context, fields []string, query string, totalCount bool) (*RecordPage, error)
}

// -----------------------------------------------------------------------------
// Mirror Ports
// -----------------------------------------------------------------------------

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// MirrorRun is one copy of an app into the local store.
type MirrorRun struct {
	ID         string
	AppID      int64
	Status     string
	Records    int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// MirrorStore persists mirrored forms, records and run history.
type MirrorStore interface {
	// SaveForm replaces the stored form of an app.
	SaveForm(ctx context.Context, appID int64, form map[string]*schema.Field) error

	// UpsertRecords stores records keyed by $id. A stored record with a
	// newer revision is kept.
	UpsertRecords(ctx context.Context, appID int64, records []*schema.Record, at time.Time) (int, error)

	// DeleteStale removes records not written since before.
	DeleteStale(ctx context.Context, appID int64, before time.Time) (int64, error)

	// StartRun records a new run.
	StartRun(ctx context.Context, run MirrorRun) error

	// FinishRun stores the outcome of a run.
	FinishRun(ctx context.Context, run MirrorRun) error
}
