// Package markup проверяет текст комментария на соответствие
// грамматике псевдотегов [tag]...[/tag].
package markup

import (
	"fmt"
	"strings"

	"github.com/UkralStul/comments-service/internal/domain"
)

const field = "text"

// allowed - допустимые теги и признак того, принимает ли тег атрибут href.
var allowed = map[string]bool{
	"i":      false,
	"strong": false,
	"code":   false,
	"a":      true,
}

type token struct {
	name    string
	closing bool
	href    *string
	end     int // индекс сразу после ']'
}

// Validate возвращает text без изменений, если он корректен, иначе *domain.ValidationError.
func Validate(text string) (string, error) {
	if strings.ContainsAny(text, "<>") {
		return "", domain.NewValidationError(field, "HTML tags are not allowed; use [i], [strong], [code] or [a].")
	}

	var stack []string
	for i := 0; i < len(text); {
		if text[i] != '[' {
			i++
			continue
		}
		tok, isTag, err := parseTag(text, i)
		if err != nil {
			return "", domain.NewValidationError(field, err.Error())
		}
		if !isTag {
			i++
			continue
		}

		hasAttr, known := allowed[tok.name]
		if !known {
			return "", domain.NewValidationError(field, fmt.Sprintf("Tag [%s] is not allowed.", tok.name))
		}
		if tok.closing {
			if len(stack) == 0 || stack[len(stack)-1] != tok.name {
				return "", domain.NewValidationError(field, fmt.Sprintf("Unexpected closing tag [/%s].", tok.name))
			}
			stack = stack[:len(stack)-1]
		} else {
			if tok.href != nil {
				if !hasAttr {
					return "", domain.NewValidationError(field, fmt.Sprintf("Tag [%s] does not accept attributes.", tok.name))
				}
				if unsafeURL(*tok.href) {
					return "", domain.NewValidationError(field, "Link target is not allowed.")
				}
			}
			stack = append(stack, tok.name)
		}
		i = tok.end
	}

	if len(stack) > 0 {
		return "", domain.NewValidationError(field, fmt.Sprintf("Tag [%s] is not closed.", stack[len(stack)-1]))
	}
	return text, nil
}

// parseTag разбирает тег, начинающийся в позиции start.
// isTag == false означает, что '[' - обычный текст.
func parseTag(text string, start int) (token, bool, error) {
	var tok token
	i := start + 1
	if i < len(text) && text[i] == '/' {
		tok.closing = true
		i++
	}

	nameStart := i
	for i < len(text) && isLetter(text[i]) {
		i++
	}
	if i == nameStart || i >= len(text) {
		return token{}, false, nil
	}
	tok.name = text[nameStart:i]

	switch text[i] {
	case ']':
		tok.end = i + 1
		return tok, true, nil
	case ' ', '\t':
	default:
		return token{}, false, nil
	}

	// дальше только атрибуты: [a href="..."]
	rest := text[i:]
	closeAt := strings.IndexByte(rest, ']')
	if closeAt < 0 {
		return token{}, false, fmt.Errorf("Tag [%s] is not terminated.", tok.name)
	}
	if tok.closing {
		return token{}, false, fmt.Errorf("Closing tag [/%s] cannot have attributes.", tok.name)
	}
	if _, known := allowed[tok.name]; !known {
		return token{}, false, fmt.Errorf("Tag [%s] is not allowed.", tok.name)
	}

	attrs := strings.TrimSpace(rest[:closeAt])
	value, ok := strings.CutPrefix(attrs, `href="`)
	if !ok || !strings.HasSuffix(value, `"`) {
		return token{}, false, fmt.Errorf("Malformed attributes in tag [%s].", tok.name)
	}
	value = strings.TrimSuffix(value, `"`)
	if strings.Contains(value, `"`) {
		return token{}, false, fmt.Errorf("Malformed attributes in tag [%s].", tok.name)
	}
	tok.href = &value
	tok.end = i + closeAt + 1
	return tok, true, nil
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func unsafeURL(raw string) bool {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lowered, "javascript:") || strings.HasPrefix(lowered, "data:")
}
