package schema

import (
	"database/sql"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ParshinPavel/libslave/replica/field"
)

// CollationCatalog maps a collation name (the "Collation" value SHOW
// FULL COLUMNS reports for a string-family column) to its charset and
// maximum byte width, built by joining SHOW COLLATION (name -> charset)
// against SHOW CHARACTER SET (charset -> maxlen). MySQL's binlog wire
// format carries collation information only in DDL, never per-event, so
// this is a name-keyed lookup rather than the numeric-ID lookup an
// information_schema.COLLATIONS join might suggest.
type CollationCatalog struct {
	mu     sync.RWMutex
	byName map[string]field.Collation
}

// LoadCollationCatalog queries db for the master's full collation table.
// It is meant to run once at handshake time — collations are
// effectively static for the lifetime of a connection.
func LoadCollationCatalog(db *sql.DB) (*CollationCatalog, error) {
	maxlen, err := charsetMaxlens(db)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SHOW COLLATION")
	if err != nil {
		return nil, errors.Wrap(err, "schema: SHOW COLLATION")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "schema: SHOW COLLATION columns")
	}
	idx := newColumnIndex(cols)

	cat := &CollationCatalog{byName: make(map[string]field.Collation)}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range vals {
			scanArgs[i] = &vals[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Wrap(err, "schema: scan collation row")
		}

		name := idx.str(vals, "collation")
		charset := idx.str(vals, "charset")

		ml, ok := maxlen[charset]
		if !ok {
			return nil, errors.Errorf("schema: SHOW COLLATION returned charset %q not present in SHOW CHARACTER SET (collation %q)", charset, name)
		}

		cat.byName[name] = field.Collation{Name: name, Charset: charset, Maxlen: ml}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "schema: iterate collation rows")
	}

	glog.V(1).Infof("schema: loaded %d collations", len(cat.byName))
	return cat, nil
}

func charsetMaxlens(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query("SHOW CHARACTER SET")
	if err != nil {
		return nil, errors.Wrap(err, "schema: SHOW CHARACTER SET")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "schema: SHOW CHARACTER SET columns")
	}
	idx := newColumnIndex(cols)

	out := make(map[string]int)
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range vals {
			scanArgs[i] = &vals[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Wrap(err, "schema: scan charset row")
		}
		name := idx.str(vals, "charset")
		ml, err := strconv.Atoi(strings.TrimSpace(idx.str(vals, "maxlen")))
		if err != nil {
			return nil, errors.Wrapf(err, "schema: charset %q has non-numeric maxlen", name)
		}
		out[name] = ml
	}
	return out, rows.Err()
}

// Lookup resolves a collation name, such as "utf8mb4_general_ci". ok is
// false for a name the catalog doesn't recognize, which Registry treats
// as schema-fatal for the table being described.
func (c *CollationCatalog) Lookup(name string) (field.Collation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byName[name]
	return v, ok
}
