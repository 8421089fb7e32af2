package markup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/comments-service/internal/domain"
)

func TestValidate_WellFormedReturnedUnchanged(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"[i]italic[/i]",
		"[strong]bold [i]both[/i][/strong]",
		"[code]x := [1]int{}[/code]",
		"[a]https://example.com[/a]",
		`[a href="https://example.com"]link[/a]`,
		"array[0] and [ spaced ] brackets",
		"trailing bracket [",
		"[i][/i][code][strong]nested[/strong][/code]",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			out, err := Validate(in)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestValidate_RejectsAngleBrackets(t *testing.T) {
	for _, in := range []string{"<b>x</b>", "a < b", "a > b", "[i]<script>[/i]"} {
		_, err := Validate(in)
		require.Error(t, err, in)

		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Contains(t, vErr.Fields, "text")
	}
}

func TestValidate_RejectsBadNesting(t *testing.T) {
	inputs := []string{
		"[i][strong][/i][/strong]",
		"[i]unclosed",
		"closing only[/i]",
		"[b]unknown[/b]",
		"[i]x[/i][/i]",
		"[I]case matters[/I]",
		"[i x]attr on i[/i]",
		`[strong href="x"]no attrs[/strong]`,
		`[a href="javascript:alert(1)"]x[/a]`,
		`[a href="DATA:text/html"]x[/a]`,
		`[a title="x"]x[/a]`,
		`[a href="x" target="y"]x[/a]`,
		"[a href=",
		`[/a href="x"]`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Validate(in)
			assert.Error(t, err)
		})
	}
}
