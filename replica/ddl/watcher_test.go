package ddl

import "testing"

func TestTableNameMatchesAlterAndCreate(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"ALTER TABLE item ADD c INT", "item"},
		{"alter table shop.item add c int", "item"},
		{"CREATE TABLE item (id INT)", "item"},
		{"CREATE TABLE IF NOT EXISTS item (id INT)", "item"},
		{"  alter   table   item  drop c", "item"},
		{"DROP TABLE item", ""},
		{"INSERT INTO item VALUES (1)", ""},
		{"SELECT * FROM item", ""},
	}
	for _, c := range cases {
		if got := tableName(c.query); got != c.want {
			t.Errorf("tableName(%q) = %q, want %q", c.query, got, c.want)
		}
	}
}

type fakeSubs struct {
	ok map[string]bool
}

func (f fakeSubs) Subscribed(database, table string) bool {
	return f.ok[database+"."+table]
}

func TestObserveSkipsUnsubscribedTable(t *testing.T) {
	w := NewWatcher(nil, fakeSubs{ok: map[string]bool{}})
	// Must not panic despite a nil registry: unsubscribed tables never
	// reach registry.Invalidate/Get.
	w.Observe("shop", "ALTER TABLE other ADD c INT")
}
