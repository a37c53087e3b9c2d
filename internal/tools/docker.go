package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// DockerAPI is the subset of the Docker Engine client the docker tools use.
// *client.Client satisfies it.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

var _ DockerAPI = (*client.Client)(nil)

// Docker implements the docker tool kinds.
type Docker struct {
	logger *slog.Logger

	mu      sync.Mutex
	api     DockerAPI
	owned   bool
	connErr error
}

// NewDocker creates docker tools. A nil api connects from the environment
// (DOCKER_HOST and friends) on first use.
func NewDocker(api DockerAPI, logger *slog.Logger) *Docker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Docker{api: api, logger: logger}
}

func (d *Docker) client() (DockerAPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.api != nil {
		return d.api, nil
	}
	if d.connErr != nil {
		return nil, d.connErr
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		d.connErr = toolerr.NewDocker("connect", err)
		return nil, d.connErr
	}
	d.api = cli
	d.owned = true
	return cli, nil
}

// Close releases a client created by Docker itself.
func (d *Docker) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owned && d.api != nil {
		err := d.api.Close()
		d.api = nil
		d.owned = false
		return err
	}
	return nil
}

// Execute runs one docker invocation.
func (d *Docker) Execute(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	api, err := d.client()
	if err != nil {
		return tool.Result{}, err
	}
	switch p := inv.Params().(type) {
	case tool.DockerList:
		return d.list(ctx, api, p)
	case tool.DockerRun:
		return d.run(ctx, api, p)
	case tool.DockerStop:
		return d.stop(ctx, api, p)
	case tool.DockerLogs:
		return d.logs(ctx, api, p)
	default:
		return tool.Result{}, unsupported(inv)
	}
}

func (d *Docker) list(ctx context.Context, api DockerAPI, p tool.DockerList) (tool.Result, error) {
	containers, err := api.ContainerList(ctx, container.ListOptions{All: p.All})
	if err != nil {
		return tool.Result{}, toolerr.NewDocker("list", err)
	}
	var b strings.Builder
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\n", shortID(c.ID), name, c.Image, c.Status)
	}
	return tool.Succeeded(b.String(), map[string]any{"containers": len(containers)}), nil
}

func (d *Docker) run(ctx context.Context, api DockerAPI, p tool.DockerRun) (tool.Result, error) {
	cfg := &container.Config{
		Image:  p.Image,
		Cmd:    p.Command,
		Env:    envList(p.Env),
		Labels: p.Labels,
	}
	hostCfg := &container.HostConfig{}
	if len(p.Ports) > 0 {
		specs := make([]string, 0, len(p.Ports))
		for containerPort, hostPort := range p.Ports {
			specs = append(specs, hostPort+":"+containerPort)
		}
		slices.Sort(specs)
		exposed, bindings, err := nat.ParsePortSpecs(specs)
		if err != nil {
			return tool.Result{}, toolerr.NewValidation("ports", "container port to host port mapping", strings.Join(specs, ","))
		}
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	resp, err := api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, p.Name)
	if cerrdefs.IsNotFound(err) {
		d.logger.Info("pulling image", "image", p.Image)
		if perr := pullImage(ctx, api, p.Image); perr != nil {
			return tool.Result{}, toolerr.NewDocker("pull "+p.Image, perr)
		}
		resp, err = api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, p.Name)
	}
	if err != nil {
		return tool.Result{}, toolerr.NewDocker("create", err)
	}
	if err := api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return tool.Result{}, toolerr.NewDocker("start", err)
	}
	return tool.Succeeded(resp.ID, map[string]any{
		"container_id": resp.ID,
		"image":        p.Image,
		"warnings":     resp.Warnings,
	}), nil
}

func (d *Docker) stop(ctx context.Context, api DockerAPI, p tool.DockerStop) (tool.Result, error) {
	opts := container.StopOptions{}
	if p.TimeoutSeconds > 0 {
		timeout := p.TimeoutSeconds
		opts.Timeout = &timeout
	}
	if err := api.ContainerStop(ctx, p.Container, opts); err != nil {
		return tool.Result{}, toolerr.NewDocker("stop", err)
	}
	return tool.Succeeded("stopped "+p.Container, map[string]any{"container": p.Container}), nil
}

func (d *Docker) logs(ctx context.Context, api DockerAPI, p tool.DockerLogs) (tool.Result, error) {
	tail := p.Tail
	if tail == "" {
		tail = "100"
	}
	rc, err := api.ContainerLogs(ctx, p.Container, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return tool.Result{}, toolerr.NewDocker("logs", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxBodyBytes))
	if err != nil {
		return tool.Result{}, toolerr.NewDocker("logs", err)
	}
	// Containers without a TTY multiplex stdout and stderr.
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, bytes.NewReader(raw)); err != nil {
		return tool.Succeeded(string(raw), map[string]any{"container": p.Container}), nil
	}
	return tool.Succeeded(stdout.String(), map[string]any{
		"container": p.Container,
		"stderr":    stderr.String(),
	}), nil
}

func pullImage(ctx context.Context, api DockerAPI, ref string) error {
	rc, err := api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
