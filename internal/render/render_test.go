package render

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		vars map[string]any
		want string
	}{
		{"simple", "Hello {{name}}!", map[string]any{"name": "Ada"}, "Hello Ada!"},
		{"spaces inside braces", "Hi {{ name }}", map[string]any{"name": "Bo"}, "Hi Bo"},
		{"repeated", "{{a}}-{{a}}", map[string]any{"a": "x"}, "x-x"},
		{"missing left verbatim", "Code: {{code}}", map[string]any{"name": "Ada"}, "Code: {{code}}"},
		{"nil vars", "Code: {{code}}", nil, "Code: {{code}}"},
		{"no html escaping", "<p>{{body}}</p>", map[string]any{"body": "<b>&</b>"}, "<p><b>&</b></p>"},
		{"not an identifier", "{{first-name}}", map[string]any{"first-name": "x"}, "{{first-name}}"},
		{"single braces ignored", "{name}", map[string]any{"name": "x"}, "{name}"},
		{"null becomes empty", "[{{v}}]", map[string]any{"v": nil}, "[]"},
		{"bool", "{{v}}", map[string]any{"v": true}, "true"},
		{"float", "{{v}}", map[string]any{"v": 3.5}, "3.5"},
		{"integral float", "{{v}}", map[string]any{"v": float64(42)}, "42"},
		{"json number keeps literal", "{{v}}", map[string]any{"v": json.Number("1.50")}, "1.50"},
		{"object as json", "{{v}}", map[string]any{"v": map[string]any{"a": 1}}, `{"a":1}`},
		{"array as json", "{{v}}", map[string]any{"v": []any{"x", 2}}, `["x",2]`},
		{"value with braces is not re-expanded", "{{a}}", map[string]any{"a": "{{b}}", "b": "no"}, "{{b}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Render(tt.text, tt.vars))
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("{{a}} {{b}} {{c}} ", 50)
	vars := map[string]any{"a": "1", "b": 2.0, "c": map[string]any{"z": 1, "y": 2}}
	want := Render(text, vars)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, Render(text, vars))
		}()
	}
	wg.Wait()
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	got := Placeholders("Hi {{name}}", "<p>{{ code }} for {{name}}</p>", "{{bad-name}}")
	assert.Equal(t, []string{"code", "name"}, got)

	assert.Empty(t, Placeholders("no tokens here"))
}

func TestMissing(t *testing.T) {
	t.Parallel()

	got := Missing([]string{"name", "code", "site"}, map[string]any{"name": "Ada", "site": nil})
	require.Len(t, got, 1)
	assert.Equal(t, "code", got[0])

	assert.Nil(t, Missing([]string{"a"}, map[string]any{"a": ""}))
	assert.Equal(t, []string{"a"}, Missing([]string{"a"}, nil))
}

func TestValidIdentifier(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"name", "first_name", "X1"} {
		assert.True(t, ValidIdentifier(name), name)
	}
	for _, name := range []string{"", "bad-name", "a b", "{{x}}"} {
		assert.False(t, ValidIdentifier(name), name)
	}
}
