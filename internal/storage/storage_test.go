package storage

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

type fakeRepo struct{ closed int }

func (f *fakeRepo) Close()                                                 { f.closed++ }
func (f *fakeRepo) ReplaceCollection(ctx context.Context, c string) error { return nil }
func (f *fakeRepo) InsertDocuments(ctx context.Context, c string, docs []Document) (int64, error) {
	return int64(len(docs)), nil
}
func (f *fakeRepo) EnsureIndex(ctx context.Context, c, field string) error { return nil }
func (f *fakeRepo) CountDocuments(ctx context.Context, c string) (int64, error) {
	return 0, nil
}

func TestRegisterAndNew(t *testing.T) {
	var got Config
	Register("fake-test", func(ctx context.Context, cfg Config) (Repository, error) {
		got = cfg
		return &fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake-test", DSN: "x", Database: "shop"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if repo == nil || got.Database != "shop" {
		t.Fatalf("New() repo=%v cfg=%+v", repo, got)
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds()=%v missing fake-test", Kinds())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("New() with empty kind: err=nil")
	}
	_, err := New(context.Background(), Config{Kind: "nope"})
	if err == nil || !strings.Contains(err.Error(), "unsupported storage.kind=nope") {
		t.Fatalf("New() err=%v", err)
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Repository, error) { return &fakeRepo{}, nil }
	Register("dup-test", f)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("dup-test", f)
}

func TestNewDocument(t *testing.T) {
	keys := []string{"id", "name", "city"}

	doc := NewDocument(keys, []string{"1", "a"}, false)
	if !reflect.DeepEqual(doc.Keys(), keys) {
		t.Fatalf("Keys()=%v, want %v", doc.Keys(), keys)
	}
	if v, ok := doc.Get("city"); !ok || v != "" {
		t.Fatalf("Get(city)=%q,%v want empty,true", v, ok)
	}

	sparse := NewDocument(keys, []string{"1", "", "X"}, true)
	if !reflect.DeepEqual(sparse.Keys(), []string{"id", "city"}) {
		t.Fatalf("ignoreBlanks Keys()=%v", sparse.Keys())
	}
}

func TestDocument_JSONKeepsOrder(t *testing.T) {
	doc := Document{{"z", "1"}, {"a", "x\"y"}, {"m", ""}}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := `{"z":"1","a":"x\"y","m":""}`; string(b) != want {
		t.Fatalf("Marshal()=%s, want %s", b, want)
	}

	var back Document
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, doc) {
		t.Fatalf("Unmarshal()=%v, want %v", back, doc)
	}
}

func TestParseLoadArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    LoadOptions
		wantErr string
	}{
		{name: "empty", args: nil, want: LoadOptions{}},
		{
			name: "mongoimport style",
			args: []string{"--batchSize=500", "--ignoreBlanks", "--maintainInsertionOrder", "--bypassDocumentValidation=false"},
			want: LoadOptions{BatchSize: 500, IgnoreBlanks: true, Ordered: true},
		},
		{name: "separate value", args: []string{"--batchSize", "20"}, want: LoadOptions{BatchSize: 20}},
		{name: "short batch", args: []string{"-b=7"}, want: LoadOptions{BatchSize: 7}},
		{name: "bad batch", args: []string{"--batchSize=zero"}, wantErr: "invalid batch size"},
		{name: "missing value", args: []string{"--batchSize"}, wantErr: "requires a value"},
		{name: "unknown", args: []string{"--upsert"}, wantErr: "unsupported load argument"},
		{name: "not a flag", args: []string{"orders"}, wantErr: "unexpected load argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLoadArgs(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseLoadArgs() err=%v, want contains %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLoadArgs: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseLoadArgs()=%+v, want %+v", got, tt.want)
			}
		})
	}
}
