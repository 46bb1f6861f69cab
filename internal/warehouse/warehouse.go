// Package warehouse holds the logical warehouse model: one database, its
// tables, the input stream bindings of streaming tables and the partition
// registrar configuration derived for each of them.
//
// Every mutation validates fully before touching any state, so a failed call
// leaves the warehouse exactly as it was.
package warehouse

import (
	"fmt"
	"sync"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/internal/partition"
	"github.com/streamhouse/streamhouse/internal/storage"
	"github.com/streamhouse/streamhouse/pkg/types"
)

// DefaultSchedule is the registrar cadence when none is configured.
const DefaultSchedule = "rate(1 hour)"

// Options configures a Warehouse.
type Options struct {
	// StorageRoot is the URI tables are laid out under, e.g. s3://bucket.
	StorageRoot string
	// ResultsLocation is where the catalog stages statement results.
	ResultsLocation string
	Region          string
	// Schedule is the default registrar schedule expression.
	Schedule string
	// Window is the default number of hours registered ahead of each tick.
	Window int
}

// DefaultOptions returns options with the default schedule and window.
func DefaultOptions(storageRoot string) Options {
	return Options{
		StorageRoot: storageRoot,
		Schedule:    DefaultSchedule,
		Window:      partition.DefaultWindow,
	}
}

// Warehouse is the aggregate root. Tables, bindings and registrar configs are
// owned exclusively by it and handed out as copies.
type Warehouse struct {
	mu       sync.RWMutex
	database string
	opts     Options
	resolver *storage.Resolver

	tables     map[string]*Table
	tableOrder []string

	streams     map[string]*InputStreamBinding
	streamOrder []string

	registrars map[string]*RegistrarConfig
}

// New creates an empty warehouse for database.
func New(database string, opts Options) (*Warehouse, error) {
	if database == "" {
		return nil, sherrors.Configuration("database name is required")
	}
	if !types.ValidIdentifier(database) {
		return nil, sherrors.Configuration("invalid database name %q", database)
	}
	resolver, err := storage.NewResolver(opts.StorageRoot)
	if err != nil {
		return nil, sherrors.Configuration("invalid storage root: %v", err)
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Window < 0 {
		return nil, sherrors.Configuration("window must be >= 0, got %d", opts.Window)
	}

	return &Warehouse{
		database:   database,
		opts:       opts,
		resolver:   resolver,
		tables:     make(map[string]*Table),
		streams:    make(map[string]*InputStreamBinding),
		registrars: make(map[string]*RegistrarConfig),
	}, nil
}

// Database returns the database name.
func (w *Warehouse) Database() string {
	return w.database
}

// Options returns the warehouse options.
func (w *Warehouse) Options() Options {
	return w.opts
}

// AddTable declares a plain table.
func (w *Warehouse) AddTable(name string, args TableArgs) (*Warehouse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	table, err := w.prepareTable(name, args.Columns, args.PartitionKeys, args.Format, types.FormatParquet, args.Location)
	if err != nil {
		return w, err
	}
	w.insertTable(table)
	return w, nil
}

// AddStreamingTable declares a table fed by an input stream. The table, its
// binding and its registrar config are created together or not at all.
func (w *Warehouse) AddStreamingTable(name string, args StreamingTableArgs) (*Warehouse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.tables[name]; exists {
		return w, sherrors.DuplicateTable(name)
	}
	if args.ShardCount < 1 {
		return w, sherrors.Configuration("table %q: shard count must be >= 1, got %d", name, args.ShardCount).
			WithDetails(map[string]interface{}{"table": name})
	}
	keyName := args.PartitionKeyName
	if keyName == "" {
		keyName = types.DefaultPartitionKeyName
	}
	window := w.opts.Window
	if args.Window != nil {
		window = *args.Window
	}
	if window < 0 {
		return w, sherrors.Configuration("table %q: window must be >= 0, got %d", name, window).
			WithDetails(map[string]interface{}{"table": name})
	}
	schedule := args.Schedule
	if schedule == "" {
		schedule = w.opts.Schedule
	}

	keys := []types.PartitionKeyDef{{Name: keyName, Type: types.DefaultPartitionKeyType}}
	table, err := w.prepareTable(name, args.Columns, keys, args.Format, types.FormatJSON, "")
	if err != nil {
		return w, err
	}

	binding := &InputStreamBinding{
		Table:        name,
		ShardCount:   args.ShardCount,
		Database:     w.database,
		TargetTable:  name,
		SinkLocation: table.Location,
	}
	registrar := &RegistrarConfig{
		Database:         w.database,
		Table:            name,
		Location:         table.Location,
		PartitionKeyName: keyName,
		Schedule:         schedule,
		Window:           window,
		ResultsLocation:  w.opts.ResultsLocation,
		Region:           w.opts.Region,
	}

	w.insertTable(table)
	w.streams[name] = binding
	w.streamOrder = append(w.streamOrder, name)
	w.registrars[name] = registrar
	return w, nil
}

// prepareTable validates a new table against the current state without
// mutating anything. Must be called with the lock held.
func (w *Warehouse) prepareTable(name string, columns []types.ColumnDef, keys []types.PartitionKeyDef,
	format, defaultFormat types.StorageFormat, location string) (*Table, error) {

	if _, exists := w.tables[name]; exists {
		return nil, sherrors.DuplicateTable(name)
	}
	if !types.ValidIdentifier(name) {
		return nil, sherrors.Configuration("invalid table name %q", name).
			WithDetails(map[string]interface{}{"table": name})
	}
	if err := types.ValidateColumns(columns, keys); err != nil {
		return nil, sherrors.Configuration("table %q: %v", name, err).
			WithDetails(map[string]interface{}{"table": name})
	}
	if format == "" {
		format = defaultFormat
	}
	if !format.Valid() {
		return nil, sherrors.Configuration("table %q: unknown storage format %q", name, format).
			WithDetails(map[string]interface{}{"table": name})
	}

	loc := w.resolver.LocationOf(name)
	if location != "" {
		parsed, err := storage.ParseLocation(location)
		if err != nil {
			return nil, sherrors.Configuration("table %q: %v", name, err).
				WithDetails(map[string]interface{}{"table": name})
		}
		loc = parsed
	}
	for _, other := range w.tableOrder {
		existing, _ := storage.ParseLocation(w.tables[other].Location)
		if existing.Overlaps(loc) {
			return nil, sherrors.Configuration("table %q: location %s overlaps table %q at %s",
				name, loc, other, existing).
				WithDetails(map[string]interface{}{"table": name})
		}
	}

	return &Table{
		Name:          name,
		Columns:       append([]types.ColumnDef(nil), columns...),
		PartitionKeys: append([]types.PartitionKeyDef(nil), keys...),
		Format:        format,
		Location:      loc.String(),
	}, nil
}

func (w *Warehouse) insertTable(t *Table) {
	w.tables[t.Name] = t
	w.tableOrder = append(w.tableOrder, t.Name)
}

// GetTable returns a copy of the named table.
func (w *Warehouse) GetTable(name string) (*Table, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	t, ok := w.tables[name]
	if !ok {
		return nil, sherrors.NotFound("table", name)
	}
	return t.clone(), nil
}

// GetInputStream returns a copy of the named table's input stream binding.
func (w *Warehouse) GetInputStream(name string) (*InputStreamBinding, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	b, ok := w.streams[name]
	if !ok {
		return nil, sherrors.NotFound("input stream", name)
	}
	cp := *b
	return &cp, nil
}

// GetRegistrarConfig returns a copy of the named table's registrar config.
func (w *Warehouse) GetRegistrarConfig(name string) (*RegistrarConfig, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	r, ok := w.registrars[name]
	if !ok {
		return nil, sherrors.NotFound("registrar", name)
	}
	cp := *r
	return &cp, nil
}

// ListTables returns table names in insertion order.
func (w *Warehouse) ListTables() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.tableOrder...)
}

// ListStreamingTables returns streaming table names in insertion order.
func (w *Warehouse) ListStreamingTables() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.streamOrder...)
}

// RegistrarConfigs returns copies of all registrar configs in insertion order.
func (w *Warehouse) RegistrarConfigs() []RegistrarConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]RegistrarConfig, 0, len(w.streamOrder))
	for _, name := range w.streamOrder {
		out = append(out, *w.registrars[name])
	}
	return out
}

// Validate checks the aggregate invariants. It never fails for a warehouse
// built only through New, AddTable and AddStreamingTable.
func (w *Warehouse) Validate() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.tables) != len(w.tableOrder) {
		return fmt.Errorf("warehouse: %d tables but %d names in order", len(w.tables), len(w.tableOrder))
	}
	for name := range w.streams {
		if _, ok := w.tables[name]; !ok {
			return fmt.Errorf("warehouse: input stream %q has no table", name)
		}
		r, ok := w.registrars[name]
		if !ok {
			return fmt.Errorf("warehouse: input stream %q has no registrar", name)
		}
		keys := w.tables[name].PartitionKeys
		if len(keys) != 1 || keys[0].Name != r.PartitionKeyName {
			return fmt.Errorf("warehouse: table %q partition keys %v do not match registrar key %q",
				name, keys, r.PartitionKeyName)
		}
	}
	for i, a := range w.tableOrder {
		la, _ := storage.ParseLocation(w.tables[a].Location)
		for _, b := range w.tableOrder[i+1:] {
			lb, _ := storage.ParseLocation(w.tables[b].Location)
			if la.Overlaps(lb) {
				return fmt.Errorf("warehouse: tables %q and %q overlap", a, b)
			}
		}
	}
	return nil
}

// ObjectPrefix returns the object path prefix of a table relative to the
// storage backend, with a trailing slash.
func (w *Warehouse) ObjectPrefix(name string) (string, error) {
	t, err := w.GetTable(name)
	if err != nil {
		return "", err
	}
	loc, err := storage.ParseLocation(t.Location)
	if err != nil {
		return "", sherrors.NewInternalError("stored table location is invalid", err)
	}
	key := loc.Key(w.resolver.Root())
	if key == "" {
		return "", nil
	}
	return key + "/", nil
}
