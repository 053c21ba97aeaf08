package scenario

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/types"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		want    Source
		wantErr bool
	}{
		{name: "step with path", from: "step:step-1:intent", want: Source{Kind: SourceStep, Step: "step-1", Path: "intent"}},
		{name: "step nested path", from: "step:s:a.b.0", want: Source{Kind: SourceStep, Step: "s", Path: "a.b.0"}},
		{name: "whole step output", from: "step:s", want: Source{Kind: SourceStep, Step: "s"}},
		{name: "input field", from: "input:user.name", want: Source{Kind: SourceInput, Path: "user.name"}},
		{name: "no prefix", from: "intent", wantErr: true},
		{name: "unknown kind", from: "env:HOME", wantErr: true},
		{name: "empty step id", from: "step::x", wantErr: true},
		{name: "empty input field", from: "input:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSource(tt.from)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPath(t *testing.T) {
	value := map[string]any{
		"intent": "greeting",
		"slots":  map[string]any{"city": "Paris"},
		"items":  []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}},
		"tags":   []string{"x", "y"},
	}

	v, ok := GetPath(value, "intent")
	assert.True(t, ok)
	assert.Equal(t, "greeting", v)

	v, ok = GetPath(value, "slots.city")
	assert.True(t, ok)
	assert.Equal(t, "Paris", v)

	v, ok = GetPath(value, "items.1.id")
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = GetPath(value, "tags.0")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = GetPath(value, "items.5.id")
	assert.False(t, ok)
	_, ok = GetPath(value, "intent.deeper")
	assert.False(t, ok)
	_, ok = GetPath(value, "missing")
	assert.False(t, ok)

	v, ok = GetPath(value, "")
	assert.True(t, ok)
	assert.Equal(t, value, v)
}

func TestSetPath(t *testing.T) {
	target := map[string]any{"keep": 1, "scalar": "x"}

	require.NoError(t, SetPath(target, "a.b.c", 42))
	require.NoError(t, SetPath(target, "scalar.inner", true))
	require.NoError(t, SetPath(target, "top", "v"))

	assert.Equal(t, map[string]any{
		"keep":   1,
		"top":    "v",
		"scalar": map[string]any{"inner": true},
		"a":      map[string]any{"b": map[string]any{"c": 42}},
	}, target)

	assert.Error(t, SetPath(target, "", 1))
	assert.Error(t, SetPath(target, "a..b", 1))
	assert.Error(t, SetPath(nil, "a", 1))
}

func TestArena_Resolve(t *testing.T) {
	arena := NewArena(map[string]any{"user": map[string]any{"name": "ann"}})
	arena.Record("s1", map[string]any{"intent": "greeting"})

	v, ok := arena.Resolve(Source{Kind: SourceInput, Path: "user.name"})
	assert.True(t, ok)
	assert.Equal(t, "ann", v)

	v, ok = arena.Resolve(Source{Kind: SourceStep, Step: "s1", Path: "intent"})
	assert.True(t, ok)
	assert.Equal(t, "greeting", v)

	_, ok = arena.Resolve(Source{Kind: SourceStep, Step: "s2", Path: "intent"})
	assert.False(t, ok)
	assert.False(t, arena.Has("s2"))
}

// SetPath 之后 GetPath 读回同一个值
func TestProperty_SetThenGet(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("get returns what set wrote", prop.ForAll(
		func(segs []string, value int) bool {
			path := strings.Join(segs, ".")
			target := map[string]any{}
			if err := SetPath(target, path, value); err != nil {
				t.Logf("SetPath(%q) failed: %v", path, err)
				return false
			}
			got, ok := GetPath(target, path)
			return ok && got == value
		},
		gen.SliceOfN(4, gen.Identifier()),
		gen.Int(),
	))

	properties.Property("set leaves sibling keys untouched", prop.ForAll(
		func(key string, value int) bool {
			target := map[string]any{"sibling": "keep"}
			if err := SetPath(target, "nested."+key, value); err != nil {
				return false
			}
			return target["sibling"] == "keep"
		},
		gen.Identifier(),
		gen.Int(),
	))

	properties.TestingRun(t)
}
