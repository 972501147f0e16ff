package pipeline

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/blobmesh/blobmesh/logging"
)

const (
	readyAttempts = 30
	readyDelay    = time.Second
	dialTimeout   = 2 * time.Second
)

// ServiceRuntime starts and stops the auxiliary service container. The
// default implementation shells out to docker; tests substitute fakes.
type ServiceRuntime interface {
	// Start launches the service and returns a handle for stopping it.
	// It blocks until the service accepts TCP connections on its first
	// published host port.
	Start(ctx context.Context, svc *Service) (ServiceHandle, error)
}

// ServiceHandle controls a started service container.
type ServiceHandle interface {
	// Stop terminates the container. Safe to call after job failure.
	Stop(ctx context.Context) error
}

// DockerRuntime runs service containers through the docker CLI.
type DockerRuntime struct {
	logger logging.Logger
	clock  clock.Clock
}

// NewDockerRuntime returns a ServiceRuntime backed by the local docker
// daemon.
func NewDockerRuntime(logger logging.Logger, clk clock.Clock) *DockerRuntime {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &DockerRuntime{logger: logger, clock: clk}
}

// Start implements ServiceRuntime.
func (d *DockerRuntime) Start(ctx context.Context, svc *Service) (ServiceHandle, error) {
	args := []string{"run", "--rm", "-d"}
	for _, p := range svc.Ports {
		args = append(args, "-p", p)
	}
	for k, v := range svc.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, svc.Image)

	out, err := exec.CommandContext(ctx, "docker", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to start service container %s: %w", svc.Image, err)
	}
	containerID := strings.TrimSpace(string(out))
	d.logger.Info("started service container %s (%s)", svc.Image, containerID)

	handle := &dockerHandle{id: containerID, logger: d.logger}

	port, err := svc.HostPort()
	if err != nil {
		_ = handle.Stop(ctx)
		return nil, err
	}
	if err := d.waitReady(ctx, port); err != nil {
		_ = handle.Stop(ctx)
		return nil, err
	}
	return handle, nil
}

// waitReady polls the published port until the service accepts connections.
func (d *DockerRuntime) waitReady(ctx context.Context, port string) error {
	addr := net.JoinHostPort("localhost", port)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			conn, err := net.DialTimeout("tcp", addr, dialTimeout)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		NotifyFunc: func(err error, attempt int) {
			d.logger.Debug("service not ready on %s (attempt %d): %v", addr, attempt, err)
		},
		Attempts: readyAttempts,
		Delay:    readyDelay,
		Clock:    d.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return fmt.Errorf("service never became ready on %s: %w", addr, err)
	}
	return nil
}

type dockerHandle struct {
	id     string
	logger logging.Logger
}

// Stop implements ServiceHandle.
func (h *dockerHandle) Stop(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "docker", "stop", h.id).Run(); err != nil {
		return fmt.Errorf("failed to stop service container %s: %w", h.id, err)
	}
	h.logger.Info("stopped service container %s", h.id)
	return nil
}
