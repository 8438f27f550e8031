package engine

import (
	"context"
	"fmt"
	"strings"
)

// Expand replaces ${name} references in s with values from the variable
// store. Unset variables expand to the empty string. Without a store, s is
// returned unchanged. A lone "$" or an unterminated "${" is kept literally.
func (rc *RunContext) Expand(ctx context.Context, s string) (string, error) {
	store := rc.delegates.Variables
	if store == nil || !strings.Contains(s, "${") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start+2:], '}')
		if end < 0 {
			b.WriteString(s)
			break
		}
		name := s[start+2 : start+2+end]

		b.WriteString(s[:start])
		value, _, err := store.Get(ctx, name)
		if err != nil {
			return "", fmt.Errorf("expanding ${%s}: %w", name, err)
		}
		b.WriteString(value)
		s = s[start+2+end+1:]
	}
	return b.String(), nil
}
