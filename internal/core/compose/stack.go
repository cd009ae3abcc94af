// Package compose parses the managed stack's Docker Compose file into the
// minimal view stackward needs: service names, images, dependency edges, and
// whether a service declares a healthcheck.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyInput is returned for an empty compose document.
	ErrEmptyInput = errors.New("compose file is empty")

	// ErrNoServices is returned when the compose file defines no services.
	ErrNoServices = errors.New("compose file defines no services")

	// ErrInvalidYAML is returned when the compose file is not valid YAML or
	// not a valid compose document.
	ErrInvalidYAML = errors.New("invalid compose file")
)

// =============================================================================
// Stack Types
// =============================================================================

// Service is one managed service of the stack.
type Service struct {
	Name           string
	Image          string
	DependsOn      []string
	HasHealthCheck bool
}

// Stack is the parsed view of the managed compose project.
type Stack struct {
	Name     string
	Services []Service
}

// ServiceNames returns the names of all services, sorted.
func (s *Stack) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.Name)
	}
	sort.Strings(names)
	return names
}

// Service looks up a service by name.
func (s *Stack) Service(name string) (Service, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return Service{}, false
}

// =============================================================================
// Parsing
// =============================================================================

// Parse loads a compose document. projectName becomes the stack name and
// must match the compose project label on running containers.
func Parse(yamlContent, projectName string) (*Stack, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil || dict == nil {
		return nil, fmt.Errorf("%w: not a YAML mapping", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Content: []byte(yamlContent), Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(projectName, true)
		opts.SkipValidation = false
		opts.SkipInterpolation = true // the compose CLI interpolates at run time
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	stack := &Stack{Name: projectName}
	for _, svc := range project.Services {
		deps := make([]string, 0, len(svc.DependsOn))
		for dep := range svc.DependsOn {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		stack.Services = append(stack.Services, Service{
			Name:           svc.Name,
			Image:          svc.Image,
			DependsOn:      deps,
			HasHealthCheck: svc.HealthCheck != nil && !svc.HealthCheck.Disable,
		})
	}
	sort.Slice(stack.Services, func(i, j int) bool {
		return stack.Services[i].Name < stack.Services[j].Name
	})
	return stack, nil
}

// =============================================================================
// Update Ordering
// =============================================================================

// UpdateOrder returns service names in dependency order (dependencies first)
// using Kahn's algorithm. Updating services in this order keeps each
// service's dependencies available while it restarts, minimizing combined
// downtime. If a cycle slips past parsing, remaining services are appended
// in name order as a fallback.
func (s *Stack) UpdateOrder() []string {
	inDegree := make(map[string]int, len(s.Services))
	dependents := make(map[string][]string)

	for _, svc := range s.Services {
		deps := 0
		for _, dep := range svc.DependsOn {
			if _, ok := s.Service(dep); ok {
				deps++
				dependents[dep] = append(dependents[dep], svc.Name)
			}
		}
		inDegree[svc.Name] = deps
	}

	var queue []string
	for _, svc := range s.Services {
		if inDegree[svc.Name] == 0 {
			queue = append(queue, svc.Name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) < len(s.Services) {
		seen := make(map[string]bool, len(order))
		for _, name := range order {
			seen[name] = true
		}
		for _, svc := range s.Services {
			if !seen[svc.Name] {
				order = append(order, svc.Name)
			}
		}
	}
	return order
}
