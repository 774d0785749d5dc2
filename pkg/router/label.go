package router

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	digits         = regexp.MustCompile(`\d`)
	separatorRuns  = regexp.MustCompile(`[.\-_*]{2,}`)
	trailingSeps   = regexp.MustCompile(`[.\-_*]+$`)
	localHostNames = []string{"localhost.localdomain", "localhost", "127.0.0.1"}
)

// HostNames returns the names of this host that are stripped from short log
// names, longest first.
func HostNames() []string {
	names := append([]string(nil), localHostNames...)
	if h, err := os.Hostname(); err == nil && h != "" {
		names = append(names, h)
		if short, _, ok := strings.Cut(h, "."); ok {
			names = append(names, short)
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return names
}

// ShortName reduces a log path to a compact name: the base name with host
// names and digits removed. A run of separators left behind collapses to its
// last character.
func ShortName(path string, hosts []string) string {
	name := filepath.Base(path)
	for _, h := range hosts {
		if h != "" {
			name = strings.ReplaceAll(name, h, "")
		}
	}
	name = digits.ReplaceAllString(name, "")
	name = separatorRuns.ReplaceAllStringFunc(name, func(s string) string { return s[len(s)-1:] })
	name = trailingSeps.ReplaceAllString(name, "")
	if name == "" {
		return filepath.Base(path)
	}
	return name
}
