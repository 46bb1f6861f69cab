package warehouse

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/pkg/types"
)

// addOp is one generated AddTable or AddStreamingTable call.
type addOp struct {
	Name      string
	Streaming bool
	Shards    int
}

func genAddOp() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 5), // small name space forces collisions
		gen.Bool(),
		gen.IntRange(0, 3),
	).Map(func(v []interface{}) addOp {
		return addOp{
			Name:      fmt.Sprintf("t%d", v[0].(int)),
			Streaming: v[1].(bool),
			Shards:    v[2].(int),
		}
	})
}

func apply(w *Warehouse, op addOp) error {
	cols := []types.ColumnDef{{Name: "id", Type: "string"}}
	if op.Streaming {
		_, err := w.AddStreamingTable(op.Name, StreamingTableArgs{Columns: cols, ShardCount: op.Shards})
		return err
	}
	_, err := w.AddTable(op.Name, TableArgs{Columns: cols})
	return err
}

type snapshot struct {
	tables, streams []string
	registrars      int
}

func snap(w *Warehouse) snapshot {
	return snapshot{w.ListTables(), w.ListStreamingTables(), len(w.RegistrarConfigs())}
}

func (s snapshot) equal(o snapshot) bool {
	return fmt.Sprint(s.tables) == fmt.Sprint(o.tables) &&
		fmt.Sprint(s.streams) == fmt.Sprint(o.streams) &&
		s.registrars == o.registrars
}

// TestProperty_TableUniqueness checks that adding an existing name always
// fails with a duplicate table error and changes nothing.
func TestProperty_TableUniqueness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("duplicate adds fail and leave the warehouse unchanged", prop.ForAll(
		func(ops []addOp) bool {
			w, err := New("analytics", DefaultOptions("s3://bucket"))
			if err != nil {
				return false
			}
			for _, op := range ops {
				before := snap(w)
				exists := false
				for _, n := range before.tables {
					if n == op.Name {
						exists = true
					}
				}
				err := apply(w, op)
				if exists {
					if !errors.Is(err, sherrors.ErrDuplicateTable) {
						return false
					}
				}
				if err != nil && !snap(w).equal(before) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genAddOp()),
	))

	properties.TestingRun(t)
}

// TestProperty_BindingCompleteness checks that every input stream has a table
// and the aggregate invariants hold after any sequence of adds.
func TestProperty_BindingCompleteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every bound stream names a table", prop.ForAll(
		func(ops []addOp) bool {
			w, err := New("analytics", DefaultOptions("s3://bucket"))
			if err != nil {
				return false
			}
			for _, op := range ops {
				_ = apply(w, op)
			}
			tables := make(map[string]bool)
			for _, n := range w.ListTables() {
				tables[n] = true
			}
			for _, n := range w.ListStreamingTables() {
				if !tables[n] {
					return false
				}
			}
			return w.Validate() == nil
		},
		gen.SliceOf(genAddOp()),
	))

	properties.TestingRun(t)
}
