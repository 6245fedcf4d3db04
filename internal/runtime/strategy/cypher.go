package strategy

import (
	"sort"
	"strings"
	"unicode"
)

const (
	unwind        = "UNWIND $events AS event"
	withEventFrom = "WITH event, from"

	labelSeparator = ":"
	keySeparator   = ", "
)

// quote back-quotes name unless it is a plain identifier.
func quote(name string) string {
	if isIdentifier(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case unicode.IsLetter(r), r == '_':
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// labelsString renders labels as ":A:B", or "" when there are none.
func labelsString(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	quoted := make([]string, len(labels))
	for i, label := range labels {
		quoted[i] = quote(label)
	}
	return labelSeparator + strings.Join(quoted, labelSeparator)
}

// keysString renders "k: event.<prefix>.k" for every key.
func keysString(prefix string, keys []string) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		q := quote(key)
		parts[i] = q + ": event." + prefix + "." + q
	}
	return strings.Join(parts, keySeparator)
}

func lines(parts ...string) string {
	return strings.Join(parts, "\n")
}

// batcher groups events by statement text, keeping first-appearance order.
// Two shapes that render the same statement share one write.
type batcher struct {
	index map[string]int
	out   []QueryEvents
}

func (b *batcher) add(query string, event any) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[query]; ok {
		b.out[i].Events = append(b.out[i].Events, event)
		return
	}
	b.index[query] = len(b.out)
	b.out = append(b.out, QueryEvents{Query: query, Events: []any{event}})
}

func (b *batcher) result() []QueryEvents {
	return b.out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// difference returns the elements of a that are not in b, in a's order.
func difference(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func appendUnique(values []string, v string) []string {
	if contains(values, v) {
		return values
	}
	return append(values, v)
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// flatten turns nested maps into a single map with dotted keys.
func flatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			flattenInto(out, full, nested)
			continue
		}
		out[full] = value
	}
}

// unflatten reverses flatten.
func unflatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for _, key := range sortedKeys(m) {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := node[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[part] = next
			}
			node = next
		}
		node[parts[len(parts)-1]] = m[key]
	}
	return out
}

// containsProp reports whether key is one of properties or nested under one
// of them.
func containsProp(key string, properties []string) bool {
	if contains(properties, key) {
		return true
	}
	if !strings.Contains(key, ".") {
		return false
	}
	for _, prop := range properties {
		if strings.HasPrefix(key, prop+".") {
			return true
		}
	}
	return false
}
