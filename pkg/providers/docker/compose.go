package docker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ComposeFile represents the part of a Docker Compose file ptail reads.
type ComposeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]ComposeService `yaml:"services"`
}

// ComposeService is a minimal service definition from a compose file.
type ComposeService struct {
	Image         string `yaml:"image"`
	ContainerName string `yaml:"container_name"`
}

// ParseComposeFile reads a compose file.
func ParseComposeFile(path string) (*ComposeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}

	var cf ComposeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	return &cf, nil
}

// ServiceNames returns the service names in the compose file, sorted.
func (cf *ComposeFile) ServiceNames() []string {
	names := make([]string, 0, len(cf.Services))
	for name := range cf.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var projectInvalid = regexp.MustCompile(`[^a-z0-9_-]`)

// ProjectName returns the compose project name: the override if set, then the
// file's top-level name, then the name of the directory holding path.
func ProjectName(cf *ComposeFile, path, override string) string {
	switch {
	case override != "":
		return override
	case cf.Name != "":
		return cf.Name
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return projectInvalid.ReplaceAllString(strings.ToLower(filepath.Base(filepath.Dir(abs))), "")
}

// ContainerNames maps compose services to the container names compose gives
// their first replica. An empty services list selects all services.
func ContainerNames(cf *ComposeFile, project string, services []string) ([]string, error) {
	if len(services) == 0 {
		services = cf.ServiceNames()
	}
	names := make([]string, 0, len(services))
	for _, name := range services {
		svc, ok := cf.Services[name]
		if !ok {
			return nil, fmt.Errorf("service %q not in compose file", name)
		}
		container := svc.ContainerName
		if container == "" {
			container = fmt.Sprintf("%s-%s-1", project, name)
		}
		names = append(names, container)
	}
	return names, nil
}
