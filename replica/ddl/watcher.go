// Package ddl recognizes ALTER/CREATE TABLE statements in QUERY_EVENT text
// and triggers schema re-discovery for the affected table.
package ddl

import (
	"regexp"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ParshinPavel/libslave/replica/schema"
)

// queryRegex is a case-insensitive first-filter match, not a SQL parser:
// backtick-quoted or otherwise exotic identifiers are deliberately not
// handled.
var queryRegex = regexp.MustCompile(`(?i)^\s*(?:alter\s+table|create\s+table(?:\s+if\s+not\s+exists)?)\s+(?:\w+\.)?(\w+)`)

// Subscription reports whether (db, table) is currently subscribed, so
// Watcher only rebuilds schemas the caller actually cares about.
type Subscription interface {
	Subscribed(database, table string) bool
}

// Watcher inspects QUERY_EVENT text against the registry's cached tables,
// invalidating and re-describing any subscribed table an ALTER/CREATE
// TABLE statement names.
type Watcher struct {
	registry *schema.Registry
	subs     Subscription
}

// NewWatcher builds a Watcher. subs may be nil, in which case every table
// named by a matching statement is treated as subscribed (useful for
// callers that describe every table they see rather than filtering up
// front).
func NewWatcher(registry *schema.Registry, subs Subscription) *Watcher {
	return &Watcher{registry: registry, subs: subs}
}

// tableName extracts the table name an ALTER/CREATE TABLE statement
// targets, or "" if query doesn't match at all.
func tableName(query string) string {
	m := queryRegex.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[1]
}

// Observe inspects one QUERY_EVENT's database and query text. If it names
// an ALTER/CREATE TABLE for a subscribed table, the registry's cached
// layout for that table is dropped and immediately re-described so the
// next TABLE_MAP/ROWS_EVENT pair for it decodes against the new shape.
// A re-describe failure (unsupported column type, unresolvable collation)
// is schema-fatal and is returned for the caller to surface and terminate
// on, the same as a failure to describe a table for the first time.
func (w *Watcher) Observe(database, query string) error {
	table := tableName(query)
	if table == "" {
		return nil
	}
	if w.subs != nil && !w.subs.Subscribed(database, table) {
		return nil
	}

	glog.V(1).Infof("ddl: %s.%s changed (%s), rebuilding schema", database, table, strings.Fields(query)[0])
	w.registry.Invalidate(database, table)
	if _, err := w.registry.Get(database, table); err != nil {
		return errors.Wrapf(err, "ddl: re-describe %s.%s after DDL", database, table)
	}
	return nil
}
