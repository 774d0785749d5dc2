// Package presets provides starter log configurations.
package presets

import (
	"fmt"
	"sort"

	"github.com/modoterra/ptail/pkg/manifest"
)

var registry = map[string]func() *manifest.Manifest{
	"generic": Generic,
	"java":    Java,
}

// Names lists the available presets.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the named preset.
func Get(name string) (*manifest.Manifest, error) {
	gen, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %v)", name, Names())
	}
	return gen(), nil
}

// Generic covers syslog and nginx.
func Generic() *manifest.Manifest {
	return &manifest.Manifest{Entries: []manifest.Entry{
		{
			Pattern: `nginx/access`,
			Label:   "nginx-access",
			Color:   "green",
			Format:  `^(?P<remote>\S+) \S+ (?P<user>\S+) \[(?P<time>[^\]]+)\] "(?P<method>\S+) (?P<path>\S+)[^"]*" (?P<status>\d{3}) (?P<bytes>\d+|-)`,
		},
		{
			Pattern: `nginx/error`,
			Label:   "nginx-error",
			Color:   "red",
			Format:  `^(?P<time>\S+ \S+) \[(?P<level>\w+)\] (?P<text>.*)$`,
		},
		{
			Pattern: `/(syslog|messages)$`,
			Label:   "syslog",
			Color:   "cyan",
			Format:  `^(?P<time>\w{3}\s+\d+ [\d:]+) (?P<host>\S+) (?P<proc>[^:\[]+)(\[(?P<pid>\d+)\])?: (?P<text>.*)$`,
		},
	}}
}

// Java covers log4j style logs of JVM services.
func Java() *manifest.Manifest {
	return &manifest.Manifest{Entries: []manifest.Entry{
		{
			Pattern: `gc[^/]*\.log`,
			Label:   "gc",
			Color:   "grey_on_white",
		},
		{
			Pattern: `\.out$`,
			Color:   "white",
		},
		{
			Pattern: `\.log$`,
			Format:  `^(?P<date>\d{4}-\d{2}-\d{2}) (?P<time>[\d:,.]+) (?P<level>[A-Z]+)\s+(\[(?P<thread>[^\]]*)\]\s+)?(?P<logger>\S+?):?\s+(?P<text>.*)$`,
		},
	}}
}
