// Package template renders user-authored node config strings against the
// accumulated execution context.
//
// Templates are untrusted input, so the language is deliberately tiny:
// {{path}} substitutes a scalar looked up by dot-separated path, and
// {{json path}} substitutes a pretty-printed JSON serialization. Nothing is
// evaluated.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*(json\s+)?([A-Za-z0-9_$-]+(?:\.[A-Za-z0-9_$-]+)*)\s*\}\}`)

// Render substitutes every placeholder in input with the value found at its
// path in the context. Unknown paths render as an empty string, matching how
// the authoring UI previews templates.
func Render(input string, context models.Context) (string, error) {
	var renderErr error

	rendered := placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		asJSON := strings.TrimSpace(groups[1]) == "json"

		value, found := Lookup(context, groups[2])
		if !found {
			return ""
		}

		if asJSON {
			encoded, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				renderErr = fmt.Errorf("failed to serialize %q: %w", groups[2], err)

				return ""
			}

			return string(encoded)
		}

		return formatScalar(value)
	})

	return rendered, renderErr
}

// Lookup resolves a dot-separated path inside the context.
func Lookup(context models.Context, path string) (any, bool) {
	var current any = map[string]any(context)

	for _, segment := range strings.Split(path, ".") {
		asMap, ok := toMap(current)
		if !ok {
			return nil, false
		}

		current, ok = asMap[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func toMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case models.Context:
		return typed, true
	default:
		return nil, false
	}
}

func formatScalar(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		// Composite values used as scalars fall back to compact JSON.
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}

		return string(encoded)
	}
}
