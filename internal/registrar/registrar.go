// Package registrar runs one partition registration tick for a streaming
// table: compute the hour keys of the window, render the idempotent ADD IF
// NOT EXISTS statement and submit it to the catalog.
//
// A registrar keeps no state between ticks and never retries. A failed tick
// is returned to the trigger, which may simply fire again.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/streamhouse/streamhouse/internal/catalog"
	"github.com/streamhouse/streamhouse/internal/ddl"
	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/internal/partition"
	"github.com/streamhouse/streamhouse/internal/warehouse"
)

// DefaultTimeout bounds a single catalog submission.
const DefaultTimeout = 2 * time.Minute

// Options configures a Registrar.
type Options struct {
	// Timeout bounds each catalog call. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// TickResult describes a successful tick.
type TickResult struct {
	Table         string
	ReferenceTime time.Time
	Keys          []string
	Statement     string
	Duration      time.Duration
}

// Registrar registers partitions for one table.
type Registrar struct {
	cfg     warehouse.RegistrarConfig
	client  catalog.Client
	timeout time.Duration
}

// New creates a registrar for cfg.
func New(cfg warehouse.RegistrarConfig, client catalog.Client, opts Options) (*Registrar, error) {
	switch {
	case client == nil:
		return nil, sherrors.Configuration("registrar: catalog client is required")
	case cfg.Database == "":
		return nil, sherrors.Configuration("registrar: database is required")
	case cfg.Table == "":
		return nil, sherrors.Configuration("registrar: table is required")
	case cfg.Location == "":
		return nil, sherrors.Configuration("registrar %s: location is required", cfg.Table)
	case cfg.PartitionKeyName == "":
		return nil, sherrors.Configuration("registrar %s: partition key name is required", cfg.Table)
	case cfg.Window < 0:
		return nil, sherrors.Configuration("registrar %s: window must be >= 0, got %d", cfg.Table, cfg.Window)
	}
	if opts.Timeout < 0 {
		return nil, sherrors.Configuration("registrar %s: timeout must be >= 0", cfg.Table)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Registrar{cfg: cfg, client: client, timeout: opts.Timeout}, nil
}

// Table returns the table this registrar serves.
func (r *Registrar) Table() string {
	return r.cfg.Table
}

// Config returns the registrar configuration.
func (r *Registrar) Config() warehouse.RegistrarConfig {
	return r.cfg
}

// Render computes the keys and statement for ref without executing anything.
func (r *Registrar) Render(ref time.Time) ([]string, string, error) {
	keys, err := partition.KeysFor(ref, r.cfg.Window)
	if err != nil {
		return nil, "", sherrors.Configuration("registrar %s: %v", r.cfg.Table, err)
	}
	values := partition.Strings(keys)
	stmt, err := ddl.BuildAddPartitions(ddl.AddPartitions{
		Database: r.cfg.Database,
		Table:    r.cfg.Table,
		Location: r.cfg.Location,
		KeyName:  r.cfg.PartitionKeyName,
		Keys:     values,
	})
	if err != nil {
		return nil, "", sherrors.Configuration("registrar %s: %v", r.cfg.Table, err)
	}
	return values, stmt, nil
}

// Tick registers the partitions of the window starting at ref's hour.
// Concurrent ticks for the same table are safe.
func (r *Registrar) Tick(ctx context.Context, ref time.Time) (*TickResult, error) {
	start := time.Now()

	keys, stmt, err := r.Render(ref)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Execute(execCtx, stmt); err != nil {
		log.Printf("registrar: table=%s ref=%s failed statement=%q: %v",
			r.cfg.Table, ref.UTC().Format(time.RFC3339), stmt, err)
		return nil, r.tickError(execCtx, stmt, err)
	}

	result := &TickResult{
		Table:         r.cfg.Table,
		ReferenceTime: ref.UTC(),
		Keys:          keys,
		Statement:     stmt,
		Duration:      time.Since(start),
	}
	log.Printf("registrar: table=%s ref=%s registered %d partition(s) %s..%s in %v",
		r.cfg.Table, result.ReferenceTime.Format(time.RFC3339), len(keys),
		keys[0], keys[len(keys)-1], result.Duration)
	return result, nil
}

// tickError normalises a client failure into a catalog error carrying the
// table and the statement. The message names the table and code only; the
// client's failure text is logged by Tick and reachable through Unwrap.
func (r *Registrar) tickError(ctx context.Context, stmt string, err error) error {
	details := map[string]interface{}{"table": r.cfg.Table, "statement": stmt}

	code := sherrors.CodeExecutionFailed
	var se *sherrors.Error
	switch {
	case errors.As(err, &se) && se.Category == sherrors.ErrCategoryCatalog:
		code = se.Code
	case ctx.Err() != nil:
		code = sherrors.CodeExecutionTimeout
	}
	msg := fmt.Sprintf("register partitions for %s: %s", r.cfg.Table, code)
	return sherrors.Wrap(sherrors.ErrCategoryCatalog, code, msg, err).HideCause().WithDetails(details)
}
