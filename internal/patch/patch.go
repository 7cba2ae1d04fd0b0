// Package patch applies JSON Patch (RFC 6902) documents to plain structs.
//
// Patchable members are declared up front in a Schema: one accessor per JSON
// pointer. Paths outside the schema are rejected; nothing is discovered at run time.
package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPatch is wrapped by every structural failure.
var ErrInvalidPatch = errors.New("invalid patch")

// Op is the operation tag.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
)

// Operation is one entry of a patch document. Value is nil when the member was
// absent and the literal null when it was sent as null.
type Operation struct {
	Op    Op              `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Document is an ordered list of operations.
type Document []Operation

// OperationError reports which operation failed and why.
type OperationError struct {
	Index  int    `json:"index"`
	Op     Op     `json:"op"`
	Path   string `json:"path"`
	Reason string `json:"message"`
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: operation %d (%s %s): %s", ErrInvalidPatch, e.Index, e.Op, e.Path, e.Reason)
}

func (e *OperationError) Unwrap() error { return ErrInvalidPatch }

// Decode parses a patch document. An empty array is valid.
func Decode(data []byte) (Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: request body is required", ErrInvalidPatch)
	}
	if data[0] != '[' {
		return nil, fmt.Errorf("%w: a patch document must be a JSON array", ErrInvalidPatch)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return doc, nil
}

// Field reads and writes one patchable member of T.
type Field[T any] struct {
	// Get returns the current value; it must be JSON-marshalable.
	Get func(*T) any
	// Set decodes raw (possibly the literal null) into the member.
	Set func(*T, json.RawMessage) error
	// Clear resets the member for "remove".
	Clear func(*T)
}

// Schema maps JSON pointers ("/name") to fields. Lookups ignore case.
type Schema[T any] map[string]Field[T]

func (s Schema[T]) lookup(path string) (Field[T], bool) {
	if f, ok := s[path]; ok {
		return f, true
	}
	for k, f := range s {
		if strings.EqualFold(k, path) {
			return f, true
		}
	}
	return Field[T]{}, false
}

// StringField declares a string member. A JSON null stores "".
func StringField[T any](get func(*T) string, set func(*T, string)) Field[T] {
	return Field[T]{
		Get: func(t *T) any { return get(t) },
		Set: func(t *T, raw json.RawMessage) error {
			if isNull(raw) {
				set(t, "")
				return nil
			}
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return errors.New("value must be a string")
			}
			set(t, v)
			return nil
		},
		Clear: func(t *T) { set(t, "") },
	}
}

// Apply runs doc against a copy of target and then validate on the result. target
// itself is never modified: on any failure the zero T and the error are returned.
// Structural failures are *OperationError; validation failures are whatever
// validate returns.
func Apply[T any](doc Document, target T, schema Schema[T], validate func(T) error) (T, error) {
	var zero T
	staged := target
	for i, op := range doc {
		if err := applyOne(&staged, i, op, schema); err != nil {
			return zero, err
		}
	}
	if validate != nil {
		if err := validate(staged); err != nil {
			return zero, err
		}
	}
	return staged, nil
}

func applyOne[T any](t *T, index int, op Operation, schema Schema[T]) error {
	fail := func(format string, args ...any) error {
		return &OperationError{Index: index, Op: op.Op, Path: op.Path, Reason: fmt.Sprintf(format, args...)}
	}

	field, ok := schema.lookup(op.Path)
	if !ok {
		if op.Path == "" {
			return fail("path is required")
		}
		return fail("the target location specified by path '%s' was not found", op.Path)
	}

	switch op.Op {
	case OpAdd, OpReplace:
		if op.Value == nil {
			return fail("value is required")
		}
		if err := field.Set(t, op.Value); err != nil {
			return fail("%v", err)
		}
	case OpRemove:
		field.Clear(t)
	case OpTest:
		if op.Value == nil {
			return fail("value is required")
		}
		equal, err := jsonEqual(field.Get(t), op.Value)
		if err != nil {
			return fail("%v", err)
		}
		if !equal {
			return fail("the current value does not match the test value")
		}
	case OpCopy, OpMove:
		src, ok := schema.lookup(op.From)
		if !ok {
			return fail("the location specified by from '%s' was not found", op.From)
		}
		raw, err := json.Marshal(src.Get(t))
		if err != nil {
			return fail("%v", err)
		}
		if op.Op == OpMove {
			src.Clear(t)
		}
		if err := field.Set(t, raw); err != nil {
			return fail("%v", err)
		}
	case "":
		return fail("op is required")
	default:
		return fail("unsupported operation %q", op.Op)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// jsonEqual compares by canonical JSON encoding.
func jsonEqual(current any, raw json.RawMessage) (bool, error) {
	var want any
	if err := json.Unmarshal(raw, &want); err != nil {
		return false, fmt.Errorf("invalid test value: %v", err)
	}
	a, err := json.Marshal(current)
	if err != nil {
		return false, err
	}
	b, err := json.Marshal(want)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}
