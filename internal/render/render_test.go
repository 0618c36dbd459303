package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_Substitution(t *testing.T) {
	got := Render("Dear {{patient}}, your appointment is at {{time}}.", map[string]string{
		"patient": "A. Reyes",
		"time":    "09:30",
	})
	assert.Equal(t, "Dear A. Reyes, your appointment is at 09:30.", got)
}

func TestRender_UnknownKeysRenderEmpty(t *testing.T) {
	got := Render("Hello {{name}}, room {{room}}.", map[string]string{"name": "B"})
	assert.Equal(t, "Hello B, room .", got)
}

func TestRender_NoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", Render("plain text", map[string]string{"x": "y"}))
}

func TestRender_NilContext(t *testing.T) {
	assert.Equal(t, "ward ", Render("ward {{id}}", nil))
}

func TestRender_RepeatedKey(t *testing.T) {
	got := Render("{{a}} and {{a}}", map[string]string{"a": "x"})
	assert.Equal(t, "x and x", got)
}

func TestRender_DanglingDelimiterLeftAsIs(t *testing.T) {
	assert.Equal(t, "oops {{open", Render("oops {{open", nil))
}

func TestRender_ValueContainingPlaceholderStaysVerbatim(t *testing.T) {
	got := Render("note: {{body}}", map[string]string{
		"body": "use {{room}} as written",
		"room": "204",
	})
	assert.Equal(t, "note: use {{room}} as written", got)
}

func TestRender_ValueReferencingAnotherKeyIsNotExpanded(t *testing.T) {
	// Deterministic regardless of map iteration order.
	for i := 0; i < 20; i++ {
		got := Render("{{a}}/{{b}}", map[string]string{"a": "{{b}}", "b": "x"})
		assert.Equal(t, "{{b}}/x", got)
	}
}
