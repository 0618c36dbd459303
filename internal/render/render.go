// Package render is a flat substitution engine: {{key}} placeholders are
// replaced from a context map, unknown keys render as empty string. No
// loops, conditionals, or inheritance; a missing context value is a caller
// bug to be caught in testing, never a runtime fault.
package render

import "strings"

// Render scans the template once, left to right. Substituted values are
// emitted verbatim, so a value that happens to contain {{...}} is never
// re-expanded.
func Render(tmpl string, data map[string]string) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for {
		start := strings.Index(tmpl, "{{")
		if start == -1 {
			b.WriteString(tmpl)
			break
		}
		rest := strings.Index(tmpl[start:], "}}")
		if rest == -1 {
			b.WriteString(tmpl)
			break
		}

		b.WriteString(tmpl[:start])
		b.WriteString(data[tmpl[start+2:start+rest]])
		tmpl = tmpl[start+rest+2:]
	}

	return b.String()
}
