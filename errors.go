package springview

import (
	"errors"
	"strings"
)

// ----------------------------- Error kinds ----------------------------------

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrMissingTemplate   = &aliasError{msg: "embedded template not found", alias: ErrTemplateNotFound}
	ErrMalformedTag      = errors.New("malformed tag")
	ErrUnterminatedTag   = errors.New("unterminated tag")
	ErrInvalidLoopSource = errors.New("invalid loop source")
	ErrMissingExpression = errors.New("missing expression")
	ErrEmptySource       = errors.New("empty template source")
	ErrIO                = errors.New("i/o error")
	ErrCachePathInvalid  = errors.New("invalid cache path")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// aliasError is a kind that also matches a broader kind.
type aliasError struct {
	msg   string
	alias error
}

func (e *aliasError) Error() string        { return e.msg }
func (e *aliasError) Is(target error) bool { return target == e.alias }

// Error is the structured error returned by every engine operation. Kind is
// one of the Err* sentinels and is matched by errors.Is.
type Error struct {
	Kind error
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	if e.Msg != "" {
		sb.WriteString(e.Msg)
	} else {
		sb.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Kind == target || errors.Is(e.Kind, target)
}

func newError(kind error, op, path, msg string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: msg}
}

func wrapError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// tagError reports a pass failure; the pass name becomes Op and Path is
// filled in by the build that ran the pass.
func tagError(kind error, pass, msg string) *Error {
	return &Error{Kind: kind, Op: pass, Msg: msg}
}
