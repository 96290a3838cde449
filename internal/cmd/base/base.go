// Package base holds what every pvectl command shares: logger, UI, and client
// construction.
package base

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/MrEthical07/pveauth"
)

// ClientFactory builds the API client a command talks to.
type ClientFactory func(log hclog.Logger) (*pveauth.Client, error)

type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	// NewClient defaults to EnvClient.
	NewClient ClientFactory
}

func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{Log: log, UI: ui, NewClient: EnvClient}
}

// Client builds a client and reports failures on the UI.
func (c *Command) Client() (*pveauth.Client, bool) {
	factory := c.NewClient
	if factory == nil {
		factory = EnvClient
	}
	client, err := factory(c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating client: %v", err))
		return nil, false
	}
	return client, true
}

// Context is canceled on SIGINT or SIGTERM.
func (c *Command) Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// EnvClient reads PROXMOX_* variables and mirrors the audit trail to the logger.
func EnvClient(log hclog.Logger) (*pveauth.Client, error) {
	cfg, err := pveauth.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return pveauth.New().
		WithConfig(cfg).
		WithLogger(log).
		WithAuditSink(pveauth.NewLoggerSink(log.Named("audit"))).
		Build()
}

// FlagSet wraps flag.FlagSet with help rendering for command Help output.
type FlagSet struct {
	*flag.FlagSet
}

func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help renders the defaults block, or "" when no flags are defined.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	hasFlags := false
	f.VisitAll(func(*flag.Flag) { hasFlags = true })
	if !hasFlags {
		return ""
	}
	buf.WriteString("\n\nOptions:\n\n")
	out := f.Output()
	f.SetOutput(&buf)
	f.PrintDefaults()
	f.SetOutput(out)
	return buf.String()
}
