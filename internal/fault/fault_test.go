package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "config", err: Config(base), want: KindConfig},
		{name: "spec", err: Spec("orders", base), want: KindSpec},
		{name: "io", err: IO("orders", base), want: KindIO},
		{name: "pipeline", err: Pipeline("orders_x", "merge", base), want: KindPipeline},
		{name: "wrapped pipeline", err: fmt.Errorf("outer: %w", Pipeline("j", "load", base)), want: KindPipeline},
		{name: "unclassified", err: base, want: KindIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf()=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	base := errors.New("no such file")
	err := Pipeline("customers_orders", "sort_left", base)

	if !errors.Is(err, base) {
		t.Fatalf("errors.Is(err, base)=false")
	}
	msg := err.Error()
	for _, want := range []string{"pipeline error", "entry=customers_orders", "stage=sort_left", "no such file"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("Error()=%q missing %q", msg, want)
		}
	}
	if StageOf(err) != "sort_left" {
		t.Fatalf("StageOf()=%q", StageOf(err))
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(Configf("missing directory %q", "/x")) {
		t.Fatalf("config error must be fatal")
	}
	if IsFatal(Spec("t", errors.New("x"))) {
		t.Fatalf("spec error must not be fatal")
	}
	if Config(nil) != nil {
		t.Fatalf("Config(nil) must be nil")
	}
}
