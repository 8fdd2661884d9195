package csv

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"tablemigrate/internal/transformer"
)

func collect(t *testing.T, src io.Reader, columns []string, opt Options) ([][]string, []int, error) {
	t.Helper()

	out := make(chan *transformer.Row, 16)
	var badLines []int
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- StreamRows(context.Background(), src, columns, opt, out, func(line int, err error) {
			badLines = append(badLines, line)
		})
	}()

	var rows [][]string
	for r := range out {
		rows = append(rows, append([]string(nil), r.V...))
		r.Free()
	}
	return rows, badLines, <-errCh
}

func TestStreamRows_CommaPositional(t *testing.T) {
	src := strings.NewReader("1,alice,extra\n2,\"bob, jr\"\n3\n")
	rows, _, err := collect(t, src, []string{"id", "name"}, Options{Comma: ','})
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	want := [][]string{
		{"1", "alice"},
		{"2", "bob, jr"},
		{"3", ""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows=%q, want %q", rows, want)
	}
}

func TestStreamRows_TabVerbatim(t *testing.T) {
	src := strings.NewReader("1\t\"quoted\"\t x \r\n\n2\tb\n3\tc")
	rows, bad, err := collect(t, src, []string{"id", "v", "w"}, Options{Comma: '\t'})
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	want := [][]string{
		{"1", `"quoted"`, " x "},
		{"2", "b", ""},
		{"3", "c", ""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows=%q, want %q", rows, want)
	}
	if !reflect.DeepEqual(bad, []int{2}) {
		t.Fatalf("bad lines=%v, want [2]", bad)
	}
}

func TestStreamRows_TabBlankLinesReported(t *testing.T) {
	out := make(chan *transformer.Row, 8)
	var errs []error
	err := StreamRows(context.Background(), strings.NewReader("x\n\n\r\ny\n"), []string{"code"}, Options{Comma: '\t'}, out,
		func(line int, err error) { errs = append(errs, err) })
	close(out)
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}

	var got []string
	for r := range out {
		got = append(got, r.V[0])
		r.Free()
	}
	if !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("rows=%q", got)
	}
	if len(errs) != 2 {
		t.Fatalf("reported=%d, want 2", len(errs))
	}
	for _, e := range errs {
		if !errors.Is(e, ErrBlankLine) {
			t.Fatalf("err=%v, want ErrBlankLine", e)
		}
	}
}

func TestStreamRows_TrimSpace(t *testing.T) {
	src := strings.NewReader(" 1 ,  a\n")
	rows, _, err := collect(t, src, []string{"id", "name"}, Options{TrimSpace: true})
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	if !reflect.DeepEqual(rows, [][]string{{"1", "a"}}) {
		t.Fatalf("rows=%q", rows)
	}
}

func TestStreamRows_ParseErrorSkipsRecord(t *testing.T) {
	src := strings.NewReader("1,ok\n2,\"broken\n")
	rows, bad, err := collect(t, src, []string{"id", "v"}, Options{})
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "1" {
		t.Fatalf("rows=%q, want only the first record", rows)
	}
	if len(bad) != 1 {
		t.Fatalf("bad lines=%v, want one", bad)
	}
}

func TestStreamRows_Latin1Decoding(t *testing.T) {
	// "Müller" in ISO-8859-1.
	src := strings.NewReader("1,M\xfcller\n")
	rows, _, err := collect(t, src, []string{"id", "name"}, Options{Encoding: "ISO-8859-1"})
	if err != nil {
		t.Fatalf("StreamRows: %v", err)
	}
	if len(rows) != 1 || rows[0][1] != "Müller" {
		t.Fatalf("rows=%q, want decoded name", rows)
	}
}

func TestDecode_UnknownEncoding(t *testing.T) {
	if _, err := Decode(strings.NewReader(""), "klingon-8"); err == nil {
		t.Fatalf("Decode() err=nil, want error")
	}
}

func TestCheckEncoding(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: ""},
		{name: "UTF-8"},
		{name: "utf8"},
		{name: "ISO-8859-1"},
		{name: "windows-1252"},
		{name: "no-such-charset", wantErr: true},
	}
	for _, tt := range tests {
		err := CheckEncoding(tt.name)
		if (err != nil) != tt.wantErr {
			t.Fatalf("CheckEncoding(%q) err=%v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestStreamRows_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *transformer.Row)
	err := StreamRows(ctx, strings.NewReader("1,a\n"), []string{"id"}, Options{}, out, nil)
	if err != context.Canceled {
		t.Fatalf("StreamRows() err=%v, want context.Canceled", err)
	}
}
