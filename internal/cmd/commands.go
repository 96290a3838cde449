// Package cmd wires the pvectl command line.
package cmd

import (
	"github.com/mitchellh/cli"

	"github.com/MrEthical07/pveauth/internal/cmd/base"
	"github.com/MrEthical07/pveauth/internal/cmd/commands"
)

// Commands returns the pvectl command table. Every command shares b.
func Commands(b *base.Command) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"nodes": func() (cli.Command, error) {
			return &commands.NodesCommand{Command: b}, nil
		},
		"vms": func() (cli.Command, error) {
			return &commands.GuestsCommand{Command: b}, nil
		},
		"containers": func() (cli.Command, error) {
			return &commands.GuestsCommand{Command: b, Containers: true}, nil
		},
		"storage": func() (cli.Command, error) {
			return &commands.StorageCommand{Command: b}, nil
		},
		"vm-status": func() (cli.Command, error) {
			return &commands.VMStatusCommand{Command: b}, nil
		},
		"audit": func() (cli.Command, error) {
			return &commands.AuditCommand{Command: b}, nil
		},
	}
}
