package schema

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	// Registered for its side effect of installing the "mysql" driver
	// name with database/sql; all access goes through the sql.DB handle
	// it returns, treating the driver as a black box behind plain
	// query/scan calls.
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ParshinPavel/libslave/replica/field"
)

// Registry resolves a (database, table) pair to its current Table
// layout, querying the master with a plain database/sql connection, the
// same metadata connection the client's handshake uses for SHOW
// VARIABLES and SHOW MASTER STATUS — introspection and binlog streaming
// are always two separate connections, never one.
//
// Results are cached until Invalidate is called, which ddl.Watcher does
// whenever it recognizes an ALTER/CREATE TABLE statement in a QUERY
// event for that table.
type Registry struct {
	db  *sql.DB
	cat *CollationCatalog

	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry wraps an already-open introspection connection. Callers
// typically open it with a DSN of the form
// "user:pass@tcp(host:port)/?parseTime=false" — Registry never selects a
// default database, since every query below qualifies table names
// explicitly. cat may be nil, in which case described columns carry a
// bare collation name with no charset/maxlen resolved.
func NewRegistry(db *sql.DB, cat *CollationCatalog) *Registry {
	return &Registry{db: db, cat: cat, tables: make(map[string]*Table)}
}

func cacheKey(database, table string) string {
	return database + "." + table
}

// FatalError wraps a describe failure that the caller must surface and
// terminate on rather than log and retry: an unsupported column type, a
// column whose collation has no match in the CollationCatalog, or a
// DESCRIBE that came back with no columns at all. It deliberately has no
// Cause method, so errors.Cause stops here even when a caller further
// wraps it for context.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }

// Get returns the cached layout for database.table, describing it from
// the master on first use or after Invalidate.
func (r *Registry) Get(database, table string) (*Table, error) {
	key := cacheKey(database, table)

	r.mu.RLock()
	t, ok := r.tables[key]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := r.describe(database, table)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.tables[key] = t
	r.mu.Unlock()
	return t, nil
}

// Invalidate drops the cached layout for database.table so the next Get
// re-describes it: a column added or dropped mid-stream must be picked up
// before the next ROWS_EVENT against that table is decoded.
func (r *Registry) Invalidate(database, table string) {
	r.mu.Lock()
	delete(r.tables, cacheKey(database, table))
	r.mu.Unlock()
}

func (r *Registry) describe(database, table string) (*Table, error) {
	quoted := fmt.Sprintf("`%s`.`%s`", database, table)
	rows, err := r.db.Query("SHOW FULL COLUMNS FROM " + quoted)
	if err != nil {
		return nil, errors.Wrapf(err, "schema: describe %s", quoted)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "schema: column names")
	}
	idx := newColumnIndex(cols)

	t := &Table{Database: database, Name: table}
	pos := 0
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range vals {
			scanArgs[i] = &vals[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Wrap(err, "schema: scan row")
		}

		fieldName := idx.str(vals, "field")
		typeStr := idx.str(vals, "type")
		nullStr := strings.ToUpper(idx.str(vals, "null"))
		keyStr := strings.ToUpper(idx.str(vals, "key"))
		collation := idx.str(vals, "collation")

		typ, meta, bitLen, err := parseColumnType(typeStr)
		if err != nil {
			return nil, &FatalError{errors.Wrapf(err, "schema: column %s.%s", quoted, fieldName)}
		}
		if collation != "" {
			if r.cat != nil {
				resolved, ok := r.cat.Lookup(collation)
				if !ok {
					return nil, &FatalError{errors.Errorf("schema: column %s.%s has collation %q with no match in SHOW COLLATION", quoted, fieldName, collation)}
				}
				meta.Collation = &resolved
			} else {
				meta.Collation = &field.Collation{Name: collation}
			}
		}
		if typ == field.TypeBlob || typ == field.TypeTinyBlob ||
			typ == field.TypeMediumBlob || typ == field.TypeLongBlob {
			meta.DeclaredLen = 0 // length-prefix width comes from TABLE_MAP, not DDL
		}

		t.Columns = append(t.Columns, Column{
			Name:       fieldName,
			Position:   pos,
			Type:       typ,
			Meta:       meta,
			BitLen:     bitLen,
			PrimaryKey: keyStr == "PRI",
			Nullable:   nullStr == "YES",
		})
		pos++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "schema: iterate rows")
	}
	if len(t.Columns) == 0 {
		return nil, &FatalError{errors.Errorf("schema: %s has no columns, or does not exist", quoted)}
	}

	glog.V(1).Infof("schema: described %s (%d columns)", quoted, len(t.Columns))
	return t, nil
}

// columnIndex maps the lower-cased column names SHOW FULL COLUMNS
// returns to their positional index, so describe() doesn't depend on a
// fixed column order (older/newer MySQL versions have added columns to
// this result set over time).
type columnIndex map[string]int

func newColumnIndex(names []string) columnIndex {
	idx := make(columnIndex, len(names))
	for i, n := range names {
		idx[strings.ToLower(n)] = i
	}
	return idx
}

func (idx columnIndex) str(vals []sql.NullString, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(vals) {
		return ""
	}
	return vals[i].String
}
