package patch

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name        string
	Description string
}

var itemSchema = Schema[item]{
	"/name": StringField(
		func(i *item) string { return i.Name },
		func(i *item, v string) { i.Name = v },
	),
	"/description": StringField(
		func(i *item) string { return i.Description },
		func(i *item, v string) { i.Description = v },
	),
}

func mustDecode(t *testing.T, raw string) Document {
	t.Helper()
	doc, err := Decode([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestApplyOperations(t *testing.T) {
	base := item{Name: "Cathedral", Description: "Gothic"}

	cases := []struct {
		name string
		doc  string
		want item
	}{
		{"empty document", `[]`, base},
		{"replace", `[{"op":"replace","path":"/name","value":"Updated"}]`, item{"Updated", "Gothic"}},
		{"add behaves as replace", `[{"op":"add","path":"/description","value":"Tall"}]`, item{"Cathedral", "Tall"}},
		{"remove clears", `[{"op":"remove","path":"/description"}]`, item{"Cathedral", ""}},
		{"null stores empty", `[{"op":"replace","path":"/description","value":null}]`, item{"Cathedral", ""}},
		{"copy", `[{"op":"copy","from":"/name","path":"/description"}]`, item{"Cathedral", "Cathedral"}},
		{"move", `[{"op":"move","from":"/description","path":"/name"}]`, item{"Gothic", ""}},
		{"test then replace", `[{"op":"test","path":"/name","value":"Cathedral"},{"op":"replace","path":"/name","value":"X"}]`, item{"X", "Gothic"}},
		{"path ignores case", `[{"op":"replace","path":"/Name","value":"Y"}]`, item{"Y", "Gothic"}},
		{"later ops see earlier ones", `[{"op":"replace","path":"/name","value":"A"},{"op":"copy","from":"/name","path":"/description"}]`, item{"A", "A"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(mustDecode(t, tc.doc), base, itemSchema, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestApplyRejectsStructuralErrors(t *testing.T) {
	base := item{Name: "Cathedral", Description: "Gothic"}

	cases := []struct {
		name  string
		doc   string
		index int
	}{
		{"unknown path", `[{"op":"replace","path":"/id","value":3}]`, 0},
		{"missing path", `[{"op":"replace","value":"x"}]`, 0},
		{"missing value", `[{"op":"replace","path":"/name"}]`, 0},
		{"wrong type", `[{"op":"replace","path":"/name","value":42}]`, 0},
		{"unknown op", `[{"op":"frobnicate","path":"/name","value":"x"}]`, 0},
		{"missing op", `[{"path":"/name","value":"x"}]`, 0},
		{"failed test", `[{"op":"replace","path":"/name","value":"A"},{"op":"test","path":"/name","value":"B"}]`, 1},
		{"bad from", `[{"op":"copy","from":"/nope","path":"/name"}]`, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(mustDecode(t, tc.doc), base, itemSchema, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPatch))

			var opErr *OperationError
			require.True(t, errors.As(err, &opErr))
			assert.Equal(t, tc.index, opErr.Index)
			assert.NotEmpty(t, opErr.Reason)
			assert.Equal(t, item{}, got)
		})
	}
}

func TestApplyLeavesTargetUntouchedOnFailure(t *testing.T) {
	target := item{Name: "Cathedral", Description: "Gothic"}
	doc := mustDecode(t, `[{"op":"replace","path":"/name","value":"Changed"},{"op":"replace","path":"/missing","value":"x"}]`)

	_, err := Apply(doc, target, itemSchema, nil)
	require.Error(t, err)
	assert.Equal(t, "Cathedral", target.Name)
}

func TestApplyRunsValidation(t *testing.T) {
	errBlank := errors.New("name is blank")
	validate := func(i item) error {
		if strings.TrimSpace(i.Name) == "" {
			return errBlank
		}
		return nil
	}

	_, err := Apply(mustDecode(t, `[{"op":"replace","path":"/name","value":""}]`), item{Name: "x"}, itemSchema, validate)
	assert.ErrorIs(t, err, errBlank)
	assert.False(t, errors.Is(err, ErrInvalidPatch))

	got, err := Apply(mustDecode(t, `[{"op":"replace","path":"/name","value":"ok"}]`), item{Name: "x"}, itemSchema, validate)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Name)
}

func TestDecode(t *testing.T) {
	for _, raw := range []string{"", "  ", `{"op":"replace"}`, `[{"op":`, `"x"`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidPatch, "input %q", raw)
	}

	doc, err := Decode([]byte(`[{"op":"replace","path":"/name","value":null}]`))
	require.NoError(t, err)
	require.Len(t, doc, 1)
	assert.Equal(t, json.RawMessage("null"), doc[0].Value)
}
