package schemadump

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"tablemigrate/internal/manifest"
)

const mysqlDump = "-- MySQL dump 10.13\n" +
	"/*!40101 SET NAMES utf8 */;\n" +
	"DROP TABLE IF EXISTS `customers`;\n" +
	"CREATE TABLE `customers` (\n" +
	"  `id` int(11) NOT NULL AUTO_INCREMENT,\n" +
	"  `name` varchar(255) DEFAULT 'a, (b)',\n" +
	"  `city` varchar(64) DEFAULT NULL, -- home city\n" +
	"  PRIMARY KEY (`id`),\n" +
	"  KEY `city_idx` (`city`(10))\n" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8;\n" +
	"INSERT INTO `customers` VALUES (1,'CREATE TABLE x (y int)','Oslo');\n" +
	"CREATE TABLE `order_lines` (\n" +
	"  `order_id` int NOT NULL,\n" +
	"  `line` int NOT NULL,\n" +
	"  `price` decimal(10,2),\n" +
	"  PRIMARY KEY (`order_id`,`line`)\n" +
	");\n"

func TestScan_MySQLDump(t *testing.T) {
	t.Parallel()

	got, err := Scan(strings.NewReader(mysqlDump))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []Table{
		{Name: "customers", Columns: manifest.FieldList{"id", "name", "city"}, PrimaryKey: "id"},
		{Name: "order_lines", Columns: manifest.FieldList{"order_id", "line", "price"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tables=%+v\nwant   %+v", got, want)
	}
}

func TestScan_Dialects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []Table
	}{
		{
			name: "postgres qualified with inline pk",
			in:   "CREATE TABLE IF NOT EXISTS public.\"Orders\" (\n  id integer PRIMARY KEY,\n  total numeric(12,2)\n);\n",
			want: []Table{{Name: "Orders", Columns: manifest.FieldList{"id", "total"}, PrimaryKey: "id"}},
		},
		{
			name: "single line sqlite",
			in:   "CREATE TABLE t(a TEXT, b INTEGER, CONSTRAINT pk PRIMARY KEY (b));",
			want: []Table{{Name: "t", Columns: manifest.FieldList{"a", "b"}, PrimaryKey: "b"}},
		},
		{
			name: "mssql brackets",
			in:   "CREATE TABLE [dbo].[items] (\n [item id] INT NOT NULL,\n [label] NVARCHAR(50)\n)\nGO\n",
			want: []Table{{Name: "items", Columns: manifest.FieldList{"item id", "label"}}},
		},
		{
			name: "redefinition keeps first position",
			in:   "CREATE TABLE a (x int);\nCREATE TABLE b (y int);\nCREATE TABLE a (x int, z int);\n",
			want: []Table{
				{Name: "a", Columns: manifest.FieldList{"x", "z"}},
				{Name: "b", Columns: manifest.FieldList{"y"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Scan(strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("tables=%+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScan_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Scan(strings.NewReader("CREATE TABLE t (\n a int,\n")); !errors.Is(err, ErrUnterminatedTable) {
		t.Fatalf("unterminated: err=%v", err)
	}
	if _, err := Scan(strings.NewReader("CREATE TABLE t (PRIMARY KEY (a));")); !errors.Is(err, ErrNoColumns) {
		t.Fatalf("no columns: err=%v", err)
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	tables := []Table{{Name: "users"}, {Name: "users_audit"}, {Name: "orders"}}
	got := Filter(tables, regexp.MustCompile(`^users`), regexp.MustCompile(`_audit$`))
	if len(got) != 1 || got[0].Name != "users" {
		t.Fatalf("Filter=%+v", got)
	}
	if got := Filter(tables, nil, nil); len(got) != 3 {
		t.Fatalf("Filter(nil, nil) kept %d", len(got))
	}
}

func TestWriteManifests_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tables := []Table{
		{Name: "customers", Columns: manifest.FieldList{"id", "name"}, PrimaryKey: "id"},
		{Name: "notes", Columns: manifest.FieldList{"body"}},
	}
	if err := WriteManifests(dir, tables, true, "generated from shop.sql"); err != nil {
		t.Fatalf("WriteManifests: %v", err)
	}

	specs, err := manifest.ReadTables(dir)
	if err != nil {
		t.Fatalf("ReadTables: %v", err)
	}
	want := []manifest.TableSpec{{Name: "customers", SortHint: "id"}, {Name: "notes"}}
	if !reflect.DeepEqual(specs, want) {
		t.Fatalf("specs=%+v, want %+v", specs, want)
	}

	fields, err := manifest.ReadFields(dir, "customers")
	if err != nil {
		t.Fatalf("ReadFields: %v", err)
	}
	if !reflect.DeepEqual(fields, manifest.FieldList{"id", "name"}) {
		t.Fatalf("fields=%v", fields)
	}

	b, err := os.ReadFile(filepath.Join(dir, manifest.TablesFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if !strings.HasPrefix(string(b), "# generated from shop.sql\n") {
		t.Fatalf("manifest header missing:\n%s", b)
	}
}
