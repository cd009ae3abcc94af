package compose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/stackward/stackward/internal/core/domain"
)

// Compose project labels set by the compose CLI on every container it
// manages.
const (
	labelProject = "com.docker.compose.project"
	labelService = "com.docker.compose.service"
)

// Literal health markers from the Docker engine.
const (
	markerHealthy   = "healthy"
	markerUnhealthy = "unhealthy"
	markerStarting  = "starting"
)

// =============================================================================
// Docker Probe
// =============================================================================

// DockerProbe checks per-service liveness/readiness through the Docker API.
// Each check is a single attempt; callers own retry and backoff.
type DockerProbe struct {
	cli      client.APIClient
	project  string
	services []string
	logger   *slog.Logger
}

// NewDockerProbe connects to the Docker daemon. host overrides the default
// socket when set. services is the stack's full service set, used by
// CheckAll so stopped services are reported rather than invisible.
func NewDockerProbe(host, project string, services []string, logger *slog.Logger) (*DockerProbe, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerProbe{
		cli:      cli,
		project:  project,
		services: services,
		logger:   logger.With("component", "health_probe"),
	}, nil
}

// NewDockerProbeWithClient wires an existing API client; used by tests.
func NewDockerProbeWithClient(cli client.APIClient, project string, services []string, logger *slog.Logger) *DockerProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerProbe{
		cli:      cli,
		project:  project,
		services: services,
		logger:   logger.With("component", "health_probe"),
	}
}

// Check probes one service. Single attempt, no internal retry.
func (p *DockerProbe) Check(ctx context.Context, service string) domain.HealthResult {
	result := domain.HealthResult{
		ServiceName: service,
		CheckedAt:   time.Now().UTC(),
	}

	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", labelProject, p.project))
	f.Add("label", fmt.Sprintf("%s=%s", labelService, service))

	containers, err := p.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		result.Reason = fmt.Sprintf("docker api error: %v", err)
		return result
	}
	if len(containers) == 0 {
		result.Reason = "no container"
		return result
	}

	// Compose normally runs one container per service; if scaled, every
	// replica must be healthy.
	for _, c := range containers {
		healthy, reason := p.inspectContainer(ctx, c.ID)
		if !healthy {
			result.Reason = reason
			return result
		}
	}

	result.Healthy = true
	result.Reason = "running"
	return result
}

func (p *DockerProbe) inspectContainer(ctx context.Context, id string) (bool, string) {
	resp, err := p.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, fmt.Sprintf("inspect failed: %v", err)
	}
	if resp.State == nil || !resp.State.Running {
		status := "unknown"
		if resp.State != nil {
			status = resp.State.Status
		}
		return false, fmt.Sprintf("not running (%s)", status)
	}
	if resp.State.Health == nil {
		// No healthcheck defined; running is the best signal available.
		return true, ""
	}
	switch resp.State.Health.Status {
	case markerHealthy:
		return true, ""
	case markerStarting:
		return false, "healthcheck starting"
	case markerUnhealthy:
		return false, "healthcheck unhealthy"
	default:
		return false, fmt.Sprintf("healthcheck %s", resp.State.Health.Status)
	}
}

// CheckAll probes every service in the stack independently. One service's
// failure never masks the status of the others.
func (p *DockerProbe) CheckAll(ctx context.Context) map[string]domain.HealthResult {
	results := make(map[string]domain.HealthResult, len(p.services))
	for _, svc := range p.services {
		results[svc] = p.Check(ctx, svc)
	}
	return results
}
