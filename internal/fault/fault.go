// Package fault classifies migration failures into the two-tier policy the
// driver applies: config errors abort the whole run, everything else only
// skips the entry that produced it.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an error.
type Kind string

const (
	KindConfig   Kind = "config"
	KindSpec     Kind = "spec"
	KindIO       Kind = "io"
	KindPipeline Kind = "pipeline"
)

// Error carries the failure class plus the manifest entry and stage it
// belongs to. Entry and Stage may be empty.
type Error struct {
	Kind  Kind
	Entry string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Entry != "" {
		msg += " entry=" + e.Entry
	}
	if e.Stage != "" {
		msg += " stage=" + e.Stage
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the error must abort the whole run.
func (e *Error) Fatal() bool { return e.Kind == KindConfig }

func Config(err error) error { return wrap(KindConfig, "", "", err) }

func Configf(format string, a ...any) error {
	return wrap(KindConfig, "", "", fmt.Errorf(format, a...))
}

func Spec(entry string, err error) error { return wrap(KindSpec, entry, "", err) }

func IO(entry string, err error) error { return wrap(KindIO, entry, "", err) }

func Pipeline(entry, stage string, err error) error {
	return wrap(KindPipeline, entry, stage, err)
}

func wrap(k Kind, entry, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Entry: entry, Stage: stage, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
// Errors that were never classified are treated as IO failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindIO
}

// StageOf returns the stage recorded on err, or "".
func StageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool { return KindOf(err) == KindConfig }
