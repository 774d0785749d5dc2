// Package settings loads environment defaults for the command line.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix namespaces every variable, e.g. PTAIL_REFRESH_INTERVAL.
const Prefix = "PTAIL"

// Settings are the defaults flags start from.
type Settings struct {
	Interval        time.Duration `split_words:"true" default:"500ms"`
	RefreshInterval time.Duration `split_words:"true" default:"500ms"`
	ResolveInterval time.Duration `split_words:"true" default:"2s"`
	ReadLimit       int64         `split_words:"true" default:"262144"`
	MaxLine         int           `split_words:"true" default:"1048576"`
	QueueSize       int           `split_words:"true" default:"1024"`
	Workers         int           `split_words:"true" default:"4"`
	Scrollback      int           `split_words:"true" default:"5000"`

	Config     string `split_words:"true"`
	LogLevel   string `split_words:"true" default:"warn"`
	User       string `split_words:"true"`
	DockerHost string `split_words:"true"`
}

// Load reads the environment.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return s, fmt.Errorf("load settings: %w", err)
	}
	if err := s.Check(); err != nil {
		return s, err
	}
	return s, nil
}

// Check rejects values the loop cannot run with.
func (s Settings) Check() error {
	var errs []error
	positive := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	positive("interval", s.Interval > 0)
	positive("refresh interval", s.RefreshInterval > 0)
	positive("resolve interval", s.ResolveInterval > 0)
	positive("read limit", s.ReadLimit > 0)
	positive("max line", s.MaxLine > 0)
	positive("queue size", s.QueueSize > 0)
	positive("workers", s.Workers > 0)
	positive("scrollback", s.Scrollback > 0)
	if _, err := ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return l, fmt.Errorf("log level %q: %w", name, err)
	}
	return l, nil
}
