package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/discovery"
	"github.com/modoterra/ptail/pkg/manifest"
	"github.com/modoterra/ptail/pkg/providers/docker"
	"github.com/modoterra/ptail/pkg/providers/procfs"
	"github.com/modoterra/ptail/pkg/providers/sudo"
	"github.com/modoterra/ptail/pkg/providers/systemd"
	"github.com/modoterra/ptail/pkg/resolver"
	"github.com/modoterra/ptail/pkg/router"
	"github.com/modoterra/ptail/pkg/textclass"
)

// pipeline is the discovery half of ptail, shared by tail and show.
type pipeline struct {
	resolver   *resolver.Resolver
	discoverer *discovery.Discoverer
}

func newPipeline(logger *slog.Logger) (*pipeline, error) {
	sel, err := selector(logger)
	if err != nil {
		return nil, err
	}

	local := procfs.New(logger)
	if err := local.Available(); err != nil {
		return nil, err
	}
	var (
		inspector  core.Inspector  = local
		classifier core.Classifier = textclass.FileClassifier{}
	)
	if opts.user != "" {
		elevated := sudo.New(opts.user, local, logger)
		if err := elevated.Available(); err != nil {
			return nil, err
		}
		inspector, classifier = elevated, elevated
	}

	var include *regexp.Regexp
	if opts.logFilter != "" {
		if include, err = regexp.Compile(opts.logFilter); err != nil {
			return nil, fmt.Errorf("--log-filter: %w", err)
		}
	}

	return &pipeline{
		resolver:   resolver.New(inspector, sel, opts.resolve, logger),
		discoverer: discovery.New(inspector, classifier, include, logger),
	}, nil
}

// selector builds the target selector. Exactly one kind of target is allowed.
func selector(logger *slog.Logger) (resolver.Selector, error) {
	var sel resolver.Selector
	kinds := 0
	if len(opts.pids) > 0 {
		kinds++
		sel.PIDs = opts.pids
	}
	if opts.name != "" {
		kinds++
		re, err := resolver.CompilePattern(opts.name)
		if err != nil {
			return sel, fmt.Errorf("--name: %w", err)
		}
		sel.Pattern = re
	}
	if len(opts.units) > 0 {
		kinds++
		sel.Sources = append(sel.Sources, systemd.New(opts.units, logger))
	}
	if len(opts.containers) > 0 || opts.compose != "" {
		kinds++
		src, err := dockerSource(logger)
		if err != nil {
			return sel, err
		}
		sel.Sources = append(sel.Sources, src)
	}
	if (len(opts.services) > 0 || opts.project != "") && opts.compose == "" {
		return sel, errors.New("--service and --project need --compose")
	}

	switch {
	case kinds == 0:
		return sel, errors.New("no targets: give --pid, --name, --unit, --container or --compose")
	case kinds > 1:
		return sel, errors.New("--pid, --name, --unit and --container/--compose are mutually exclusive")
	}
	return sel, nil
}

func dockerSource(logger *slog.Logger) (*docker.Source, error) {
	names := append([]string(nil), opts.containers...)
	if opts.compose != "" {
		cf, err := docker.ParseComposeFile(opts.compose)
		if err != nil {
			return nil, err
		}
		services := opts.services
		if len(services) == 0 {
			services = cf.ServiceNames()
		}
		project := docker.ProjectName(cf, opts.compose, opts.project)
		composed, err := docker.ContainerNames(cf, project, services)
		if err != nil {
			return nil, err
		}
		names = append(names, composed...)
	}
	if env.DockerHost != "" {
		if err := os.Setenv("DOCKER_HOST", env.DockerHost); err != nil {
			return nil, err
		}
	}
	return docker.New(names, logger)
}

// loadConfig reads and checks the log configuration. Bad format patterns only
// disable their entry's extraction.
func loadConfig(logger *slog.Logger) (*manifest.Manifest, error) {
	path, explicit := opts.config, opts.config != ""
	if !explicit {
		path = manifest.DefaultFile
	}
	m, err := manifest.Load(path, explicit)
	if err != nil {
		return nil, err
	}
	if errs := manifest.Validate(m); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", path, errors.Join(errs...))
	}
	for _, err := range m.Compile() {
		logger.Warn("format disabled", "config", path, "err", err)
	}
	if len(m.Entries) > 0 {
		logger.Info("configuration loaded", "path", path, "entries", len(m.Entries))
	}
	return m, nil
}

func routerOptions(cfg *manifest.Manifest) (router.Options, error) {
	ro := router.Options{
		Config:    cfg,
		Hosts:     router.HostNames(),
		QueueSize: env.QueueSize,
	}
	var err error
	if opts.highlight != "" {
		if ro.Highlight, err = regexp.Compile(opts.highlight); err != nil {
			return ro, fmt.Errorf("--highlight: %w", err)
		}
	}
	if opts.grep != "" {
		if ro.Filter.Raw, err = regexp.Compile(opts.grep); err != nil {
			return ro, fmt.Errorf("--grep: %w", err)
		}
	}
	if ro.Filter.Fields, err = router.ParseFieldFilters(opts.filters); err != nil {
		return ro, fmt.Errorf("--filter: %w", err)
	}
	return ro, nil
}
