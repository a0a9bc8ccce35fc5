// Package schema normalizes JSON-Schema tool parameter definitions before
// they are sent to an upstream provider.
package schema

// droppedFields is the set of keys stripped from every object in a schema.
// Providers disagree on support for these, so the proxy removes them
// uniformly rather than special-casing per adapter.
var droppedFields = map[string]struct{}{
	"$schema":            {},
	"title":              {},
	"examples":           {},
	"additionalProperties": {},
}

// maxDepth bounds the recursion so a pathologically deep or cyclic-looking
// schema cannot blow the stack; anything beyond this is returned as-is.
const maxDepth = 64

// Clean returns a normalized copy of a JSON-Schema-shaped map, removing
// $schema, title, examples, additionalProperties everywhere, and format
// when the enclosing object's type is "string". It recurses into
// properties.*, items, and any nested object value. Clean is idempotent:
// Clean(Clean(x)) == Clean(x).
func Clean(node map[string]any) map[string]any {
	return clean(node, 0)
}

func clean(node map[string]any, depth int) map[string]any {
	if node == nil || depth >= maxDepth {
		return node
	}

	out := make(map[string]any, len(node))
	isStringType := isStringTyped(node)
	for k, v := range node {
		if _, dropped := droppedFields[k]; dropped {
			continue
		}
		if k == "format" && isStringType {
			continue
		}
		out[k] = cleanValue(k, v, depth)
	}
	return out
}

func isStringTyped(node map[string]any) bool {
	t, ok := node["type"]
	if !ok {
		return false
	}
	s, ok := t.(string)
	return ok && s == "string"
}

func cleanValue(key string, v any, depth int) any {
	switch val := v.(type) {
	case map[string]any:
		if key == "properties" {
			props := make(map[string]any, len(val))
			for pk, pv := range val {
				if sub, ok := pv.(map[string]any); ok {
					props[pk] = clean(sub, depth+1)
				} else {
					props[pk] = pv
				}
			}
			return props
		}
		return clean(val, depth+1)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			if sub, ok := item.(map[string]any); ok {
				out[i] = clean(sub, depth+1)
			} else {
				out[i] = item
			}
		}
		return out
	default:
		return v
	}
}
