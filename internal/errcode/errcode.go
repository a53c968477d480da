// Package errcode defines the stable error identifiers reported by the
// session, storage and command layers.
package errcode

import "errors"

// Code is a stable, console-facing error identifier.
// It is a string newtype, comparable, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	InvalidName        Code = "invalid_name"
	AlreadyActive      Code = "already_active"
	NotActive          Code = "not_active"
	StorageUnavailable Code = "storage_unavailable"
	WriteFailure       Code = "write_failure"
	FileBusy           Code = "file_busy"
	ReadFailure        Code = "read_failure"
	NotFound           Code = "not_found"
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

// New returns an *E for op with a formatted message.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap attaches a Code and op to an underlying error.
func Wrap(err error, c Code, op string) *E {
	return &E{C: c, Op: op, Err: err}
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.FileBusy) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error. It returns "" for nil and for errors
// that carry no Code.
func Of(err error) Code {
	if err == nil {
		return ""
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return ""
}
