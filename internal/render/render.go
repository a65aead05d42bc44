// Package render substitutes {{name}} placeholders in template text.
//
// Substitution is purely textual. Values are not HTML-escaped and a
// placeholder with no matching variable is left in the output verbatim.
package render

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
)

var (
	placeholderRegex = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
	identifierRegex  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// ValidIdentifier reports whether name can appear inside a placeholder.
func ValidIdentifier(name string) bool {
	return identifierRegex.MatchString(name)
}

// Render replaces every placeholder in text with the string form of the
// matching entry in vars.
func Render(text string, vars map[string]any) string {
	if len(vars) == 0 {
		return text
	}
	return placeholderRegex.ReplaceAllStringFunc(text, func(token string) string {
		name := placeholderRegex.FindStringSubmatch(token)[1]
		v, ok := vars[name]
		if !ok {
			return token
		}
		return Stringify(v)
	})
}

// Placeholders returns the sorted, de-duplicated placeholder names in text.
func Placeholders(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, m := range placeholderRegex.FindAllStringSubmatch(text, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Missing returns the declared names that have no entry in vars, in the
// order they were declared.
func Missing(declared []string, vars map[string]any) []string {
	var missing []string
	for _, name := range declared {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Stringify converts a decoded JSON value to its substitution text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
