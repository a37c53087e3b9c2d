package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/engine"
	"github.com/jackzampolin/toolrun/internal/testutil"
	"github.com/jackzampolin/toolrun/internal/tool"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	homeDir = t.TempDir()
	cfgFile = ""
	t.Cleanup(func() { homeDir = "" })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	a, err := newApp(cmd)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestServeMetrics(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := a.engine.Execute(ctx, tool.New(tool.ListDirectory{})); err != nil {
		t.Fatalf("list workspace: %v", err)
	}

	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	base := "http://127.0.0.1:" + port
	a.serveMetrics(ctx, "127.0.0.1:"+port)
	if err := testutil.WaitForHTTP(base+"/health", 5*time.Second); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(base + "/usage")
	if err != nil {
		t.Fatal(err)
	}
	var usage engine.ResourceUsage
	err = json.NewDecoder(resp.Body).Decode(&usage)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.MaxConcurrentTools != 10 || usage.CachedResults != 1 {
		t.Errorf("usage = %+v", usage)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `toolrun_invocations_total{kind="list_directory",outcome="success"} 1`) {
		t.Errorf("metrics missing invocation counter:\n%s", body)
	}
}

func TestNewAppDefaultsRootToWorkspace(t *testing.T) {
	a := newTestApp(t)
	if got, want := a.tools.Files.Root(), a.home.WorkspacePath(); !strings.HasSuffix(got, "workspace") || !strings.HasSuffix(want, "workspace") {
		t.Errorf("root = %s, want %s", got, want)
	}
}
