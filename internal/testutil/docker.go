// Package testutil holds helpers for tests that need real external
// services: a Docker daemon or a listening HTTP server.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// OwnerLabel marks containers started by a test. Its value is the test name.
const OwnerLabel = "toolrun-test"

// TB is the part of testing.TB the Docker helpers use.
type TB interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Helper()
}

// DockerClient returns a client for the local daemon, or skips t when there
// is none. Containers owned by t are removed before it returns, catching
// leftovers from an interrupted run, and again when t finishes.
func DockerClient(t TB) *client.Client {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("no docker client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		t.Skipf("docker daemon unreachable: %v", err)
	}

	removeOwned(t, cli)
	t.Cleanup(func() {
		removeOwned(t, cli)
		_ = cli.Close()
	})
	return cli
}

// UniqueContainerName returns "toolrun-test-<prefix>-<test>-<hex>".
func UniqueContainerName(t TB, prefix string) string {
	t.Helper()
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%s-%s-%s", OwnerLabel, prefix, containerSafe(t.Name()), hex.EncodeToString(suffix))
}

// ContainerLabels tags a container as owned by t.
func ContainerLabels(t TB) map[string]string {
	return map[string]string{OwnerLabel: t.Name()}
}

func removeOwned(t TB, cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	owned, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", OwnerLabel+"="+t.Name())),
	})
	if err != nil {
		t.Logf("list test containers: %v", err)
		return
	}
	for _, c := range owned {
		err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		if err != nil {
			t.Logf("remove test container %s: %v", c.ID[:12], err)
		}
	}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// containerSafe squeezes a test name into a short container name component.
func containerSafe(name string) string {
	s := unsafeChars.ReplaceAllString(name, "-")
	if len(s) > 30 {
		s = s[:30]
	}
	return s
}
