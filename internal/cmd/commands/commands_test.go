package commands

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/internal/cmd/base"
	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

const ticketBody = `{"data":{"ticket":"PVE:root@pam:1","CSRFPreventionToken":"1:csrf"}}`

// routes maps a request path without its query to a response body. Missing paths
// answer 500.
func testBase(t *testing.T, routes map[string]string) (*base.Command, *cli.MockUi) {
	t.Helper()
	tr := transport.Func(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		if req.Path == session.TicketPath {
			return &transport.Response{StatusCode: http.StatusOK, Body: []byte(ticketBody)}, nil
		}
		path, _, _ := strings.Cut(req.Path, "?")
		body, ok := routes[path]
		if !ok {
			return &transport.Response{StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error",
				Body: []byte(`{"data":null,"message":"boom"}`)}, nil
		}
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
	})

	ui := cli.NewMockUi()
	cmd := &base.Command{
		Log: hclog.NewNullLogger(),
		UI:  ui,
		NewClient: func(log hclog.Logger) (*pveauth.Client, error) {
			cfg := pveauth.DefaultConfig()
			cfg.Host = "pve.example"
			cfg.Username = "root"
			cfg.Password = "secret"
			return pveauth.New().WithConfig(cfg).WithTransport(tr).WithLogger(log).Build()
		},
	}
	return cmd, ui
}

func TestNodesCommand(t *testing.T) {
	b, ui := testBase(t, map[string]string{
		"/nodes": `{"data":[{"node":"pve1","status":"online","cpu":0.25,"mem":1073741824,"maxmem":4294967296,"uptime":60}]}`,
	})
	c := &NodesCommand{Command: b}
	if code := c.Run(nil); code != 0 {
		t.Fatalf("exit %d: %s", code, ui.ErrorWriter.String())
	}
	out := ui.OutputWriter.String()
	if !strings.Contains(out, "pve1") || !strings.Contains(out, "25.0%") || !strings.Contains(out, "1024 MiB/4096 MiB") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestGuestsCommandWarnsOnPartialListing(t *testing.T) {
	b, ui := testBase(t, map[string]string{
		"/nodes":       `{"data":[{"node":"a"},{"node":"b"}]}`,
		"/nodes/a/lxc": `{"data":[{"vmid":200,"name":"ct","status":"running"}]}`,
	})
	c := &GuestsCommand{Command: b, Containers: true}
	if code := c.Run(nil); code != 0 {
		t.Fatalf("partial listing should still succeed, exit %d: %s", code, ui.ErrorWriter.String())
	}
	if !strings.Contains(ui.OutputWriter.String(), "200") {
		t.Fatalf("expected container 200 listed:\n%s", ui.OutputWriter.String())
	}
	if !strings.Contains(ui.ErrorWriter.String(), "containers incomplete") {
		t.Fatalf("expected partial warning, got %q", ui.ErrorWriter.String())
	}
}

func TestVMStatusCommandArgs(t *testing.T) {
	b, ui := testBase(t, map[string]string{
		"/nodes/pve/qemu/100/status/current": `{"data":{"vmid":100,"status":"running","name":"web"}}`,
	})
	c := &VMStatusCommand{Command: b}
	if code := c.Run([]string{"pve"}); code != 1 {
		t.Fatalf("expected usage error, got %d", code)
	}
	if code := c.Run([]string{"pve", "abc"}); code != 1 {
		t.Fatalf("expected invalid vmid error, got %d", code)
	}
	if code := c.Run([]string{"pve", "100"}); code != 0 {
		t.Fatalf("exit %d: %s", code, ui.ErrorWriter.String())
	}
	if !strings.Contains(ui.OutputWriter.String(), "running") {
		t.Fatalf("unexpected output:\n%s", ui.OutputWriter.String())
	}
}

func TestStorageCommandRequiresNodeWithStorage(t *testing.T) {
	b, _ := testBase(t, nil)
	c := &StorageCommand{Command: b}
	if code := c.Run([]string{"-storage", "local"}); code != 1 {
		t.Fatalf("expected flag error, got %d", code)
	}
}

func TestStorageCommandListsContent(t *testing.T) {
	b, ui := testBase(t, map[string]string{
		"/nodes/pve/storage/local/content": `{"data":[{"volid":"local:iso/debian.iso","content":"iso","format":"iso","size":1048576}]}`,
	})
	c := &StorageCommand{Command: b}
	if code := c.Run([]string{"-node", "pve", "-storage", "local", "-content", "iso"}); code != 0 {
		t.Fatalf("exit %d: %s", code, ui.ErrorWriter.String())
	}
	if !strings.Contains(ui.OutputWriter.String(), "local:iso/debian.iso") {
		t.Fatalf("unexpected output:\n%s", ui.OutputWriter.String())
	}
}

func TestAuditCommandPrintsTrail(t *testing.T) {
	b, ui := testBase(t, map[string]string{
		"/nodes": `{"data":[]}`,
	})
	c := &AuditCommand{Command: b}
	if code := c.Run(nil); code != 0 {
		t.Fatalf("exit %d: %s", code, ui.ErrorWriter.String())
	}
	out := ui.OutputWriter.String()
	if !strings.Contains(out, "success") || !strings.Contains(out, "GET") || !strings.Contains(out, "nodes") {
		t.Fatalf("expected audit entry for the listing:\n%s", out)
	}
}

func TestAuditCommandSanitizesServerMessage(t *testing.T) {
	tr := transport.Func(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		if req.Path == session.TicketPath {
			return &transport.Response{StatusCode: http.StatusOK, Body: []byte(ticketBody)}, nil
		}
		return &transport.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden",
			Body: []byte(`{"data":null,"message":"denied\n2026-01-01T00:00:00Z\tsuccess\tGET\tforged"}`)}, nil
	})
	ui := cli.NewMockUi()
	b := &base.Command{
		Log: hclog.NewNullLogger(),
		UI:  ui,
		NewClient: func(log hclog.Logger) (*pveauth.Client, error) {
			cfg := pveauth.DefaultConfig()
			cfg.Host = "pve.example"
			cfg.Username = "root"
			cfg.Password = "secret"
			return pveauth.New().WithConfig(cfg).WithTransport(tr).WithLogger(log).Build()
		},
	}

	c := &AuditCommand{Command: b}
	if code := c.Run(nil); code != 1 {
		t.Fatalf("expected failed listing exit code, got %d", code)
	}
	out := ui.OutputWriter.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one entry, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "failure") || !strings.Contains(lines[1], "forged") {
		t.Fatalf("server message must stay inside the failure row:\n%s", out)
	}
}

func TestFlagSetHelp(t *testing.T) {
	c := &StorageCommand{Command: &base.Command{}}
	help := c.Help()
	if !strings.Contains(help, "-content") || !strings.Contains(help, "Options:") {
		t.Fatalf("help missing flags:\n%s", help)
	}
}
