package router

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter decides which lines pass. At most one of Raw and Fields is set; the
// zero Filter passes everything.
type Filter struct {
	Raw    *regexp.Regexp
	Fields map[string]*regexp.Regexp
}

// specStart matches the "name=" that opens a field filter.
var specStart = regexp.MustCompile(`^\s*\w+=`)

// splitSpecs splits "a=x,b=y" lists. A comma only separates specs when a
// "name=" follows it, so patterns such as `x{1,3}` stay whole.
func splitSpecs(specs []string) []string {
	var out []string
	for _, s := range specs {
		start := 0
		for i := 0; i < len(s); i++ {
			if s[i] == ',' && specStart.MatchString(s[i+1:]) {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
		out = append(out, s[start:])
	}
	return out
}

// ParseFieldFilters compiles "name=pattern" specs. Each spec may hold a
// comma separated list.
func ParseFieldFilters(specs []string) (map[string]*regexp.Regexp, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	specs = splitSpecs(specs)
	out := make(map[string]*regexp.Regexp, len(specs))
	for _, s := range specs {
		name, expr, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("filter %q: expected name=pattern", s)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", s, err)
		}
		out[name] = re
	}
	return out, nil
}

// Pass reports whether a line passes. fields is nil when the line did not
// match its format.
func (f Filter) Pass(text string, fields map[string]string) bool {
	switch {
	case f.Raw != nil:
		return f.Raw.MatchString(text)
	case len(f.Fields) > 0:
		if fields == nil {
			return false
		}
		for name, re := range f.Fields {
			v, ok := fields[name]
			if !ok || !re.MatchString(v) {
				return false
			}
		}
	}
	return true
}
