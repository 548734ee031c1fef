package template

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMissingPlaceholder = errors.New("missing placeholder value")
	ErrMalformedTemplate  = errors.New("malformed template")
)

// Render substitutes {name} placeholders in tpl with values from data.
// "{{" and "}}" produce literal braces.
func Render(tpl string, data map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d: %w", i, ErrMalformedTemplate)
			}
			name := tpl[i+1 : i+1+end]
			if name == "" || strings.ContainsAny(name, "{ ") {
				return "", fmt.Errorf("invalid placeholder %q: %w", name, ErrMalformedTemplate)
			}
			v, ok := data[name]
			if !ok {
				return "", fmt.Errorf("%q: %w", name, ErrMissingPlaceholder)
			}
			b.WriteString(formatValue(v))
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("unmatched '}' at offset %d: %w", i, ErrMalformedTemplate)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// formatValue prints floats without trailing zeros so 8.5 renders as "8.5".
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
