package probe

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"tablemigrate/internal/config"
)

func TestSample_Comma(t *testing.T) {
	t.Parallel()

	data := []byte("1,Ann,2024-01-02,true\n2,\"Bob, Jr\",2024-02-03,no\n3,Cy\n4,\"bad\"x,2024-01-01,y\n")
	got := Sample(data, config.Comma, 4)

	if got.Records != 3 || got.Malformed != 1 {
		t.Fatalf("records=%d malformed=%d", got.Records, got.Malformed)
	}
	if got.MinFields != 2 || got.MaxFields != 4 {
		t.Fatalf("fields=%d..%d", got.MinFields, got.MaxFields)
	}
	want := []string{"integer", "text", "date", "boolean"}
	if !reflect.DeepEqual(got.Types, want) {
		t.Fatalf("Types=%v, want %v", got.Types, want)
	}
	if got.Sniffed != config.Comma {
		t.Fatalf("Sniffed=%s", got.Sniffed)
	}
}

func TestSample_TabAndSniff(t *testing.T) {
	t.Parallel()

	data := []byte("a,b\t1.5\t2024-01-02 10:00:00\r\nc\t\t2024-01-03 11:30:00\n")
	got := Sample(data, config.Tab, 0)

	if got.Records != 2 || got.MaxFields != 3 {
		t.Fatalf("records=%d max=%d", got.Records, got.MaxFields)
	}
	want := []string{"text", "float", "timestamp"}
	if !reflect.DeepEqual(got.Types, want) {
		t.Fatalf("Types=%v, want %v", got.Types, want)
	}
	if got.Sniffed != config.Tab {
		t.Fatalf("Sniffed=%s", got.Sniffed)
	}
}

func TestFile_TruncatesToLastLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "big.csv")
	if err := os.WriteFile(path, []byte(strings.Repeat("12345,abc\n", 100)), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := File(path, Options{Delimiter: config.Comma, Columns: 2, Bytes: 55})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if !got.Truncated || got.Records != 5 || got.MinFields != 2 {
		t.Fatalf("got %+v", got)
	}
	if d := got.Describe([]string{"id", "code"}); d != "5 records (head), 2 fields; id integer, code text" {
		t.Fatalf("Describe=%q", d)
	}
}

func TestFile_Missing(t *testing.T) {
	t.Parallel()

	if _, err := File(filepath.Join(t.TempDir(), "nope.csv"), Options{}); !os.IsNotExist(err) {
		t.Fatalf("err=%v, want not-exist", err)
	}
}
