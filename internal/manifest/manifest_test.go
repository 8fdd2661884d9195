package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestReadTables(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, TablesFile, `# tables exported from shop
customers
  orders   created_at   # sort hint
# products

items extra tokens ignored
`)

	got, err := ReadTables(dir)
	if err != nil {
		t.Fatalf("ReadTables: %v", err)
	}
	want := []TableSpec{
		{Name: "customers"},
		{Name: "orders", SortHint: "created_at"},
		{Name: "items", SortHint: "extra"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadTables()=%#v, want %#v", got, want)
	}
}

func TestReadTables_Errors(t *testing.T) {
	t.Parallel()

	missing := t.TempDir()
	if _, err := ReadTables(missing); !errors.Is(err, ErrMissingManifest) {
		t.Fatalf("missing manifest: err=%v, want ErrMissingManifest", err)
	}

	empty := t.TempDir()
	writeFile(t, empty, TablesFile, "# only comments\n\n   \n")
	if _, err := ReadTables(empty); !errors.Is(err, ErrNoTablesDeclared) {
		t.Fatalf("empty manifest: err=%v, want ErrNoTablesDeclared", err)
	}
}

func TestReadFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "orders.fields", "id int\ncustomer_id\n# comment\ntotal  decimal(10,2)\n")
	writeFile(t, dir, "empty.fields", "# nothing\n")

	got, err := ReadFields(dir, "orders")
	if err != nil {
		t.Fatalf("ReadFields: %v", err)
	}
	if want := (FieldList{"id", "customer_id", "total"}); !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadFields()=%v, want %v", got, want)
	}
	if got.Index("customer_id") != 2 || got.Index("nope") != 0 {
		t.Fatalf("Index: customer_id=%d nope=%d", got.Index("customer_id"), got.Index("nope"))
	}

	if _, err := ReadFields(dir, "empty"); !errors.Is(err, ErrEmptyFieldList) {
		t.Fatalf("empty fields: err=%v, want ErrEmptyFieldList", err)
	}
	if _, err := ReadFields(dir, "absent"); !errors.Is(err, ErrMissingFieldFile) {
		t.Fatalf("absent fields: err=%v, want ErrMissingFieldFile", err)
	}
}

func TestReadJoins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, JoinsFile, `# output left right sort
customer_orders customers.id orders.customer_id -
order_lines orders.id
   items.order.id total
`)

	got, err := ReadJoins(dir)
	if err != nil {
		t.Fatalf("ReadJoins: %v", err)
	}
	want := []JoinSpec{
		{
			OutputName: "customer_orders",
			Left:       FieldRef{Table: "customers", Field: "id"},
			Right:      FieldRef{Table: "orders", Field: "customer_id"},
			SortField:  Unordered,
		},
		{
			OutputName: "order_lines",
			Left:       FieldRef{Table: "orders", Field: "id"},
			Right:      FieldRef{Table: "items", Field: "order.id"},
			SortField:  "total",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadJoins()=%#v, want %#v", got, want)
	}
	if got[0].Ordered() || !got[1].Ordered() {
		t.Fatalf("Ordered(): %v %v", got[0].Ordered(), got[1].Ordered())
	}
}

func TestReadJoins_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	got, err := ReadJoins(t.TempDir())
	if err != nil || len(got) != 0 {
		t.Fatalf("ReadJoins()=%v,%v want empty,nil", got, err)
	}
}

func TestParseJoinTokens_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		toks []string
	}{
		{name: "five tokens", toks: []string{"out", "a.id", "b.id", "-", "extra"}},
		{name: "three tokens", toks: []string{"out", "a.id", "b.id"}},
		{name: "no dot", toks: []string{"out", "a", "b.id", "-"}},
		{name: "empty field", toks: []string{"out", "a.id", "b.", "-"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJoinTokens(tt.toks); !errors.Is(err, ErrMalformedJoinManifest) {
				t.Fatalf("ParseJoinTokens(%v) err=%v, want ErrMalformedJoinManifest", tt.toks, err)
			}
		})
	}
}

func TestWriteThenRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tables := []TableSpec{{Name: "customers"}, {Name: "orders", SortHint: "id"}}
	if err := WriteTables(dir, "generated", tables); err != nil {
		t.Fatalf("WriteTables: %v", err)
	}
	if err := WriteFields(dir, "orders", "generated", FieldList{"id", "total"}); err != nil {
		t.Fatalf("WriteFields: %v", err)
	}

	got, err := ReadTables(dir)
	if err != nil || !reflect.DeepEqual(got, tables) {
		t.Fatalf("ReadTables()=%v,%v", got, err)
	}
	fields, err := ReadFields(dir, "orders")
	if err != nil || !reflect.DeepEqual(fields, FieldList{"id", "total"}) {
		t.Fatalf("ReadFields()=%v,%v", fields, err)
	}
}
