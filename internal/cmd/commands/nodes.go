package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/internal/cmd/base"
	"github.com/MrEthical07/pveauth/resources"
)

type NodesCommand struct {
	*base.Command
}

func (c *NodesCommand) Synopsis() string {
	return "List cluster nodes"
}

func (c *NodesCommand) Help() string {
	return `Usage: pvectl nodes

  Lists every node in the cluster with its status and resource usage.
  Connection settings are read from PROXMOX_* environment variables.`
}

func (c *NodesCommand) Run(args []string) int {
	ctx, cancel := c.Context()
	defer cancel()

	return withService(c.Command, func(_ *pveauth.Client, svc *resources.Service) int {
		nodes, err := svc.ListNodes(ctx)
		if err != nil {
			return reportError(c.Command, "nodes", err)
		}
		c.UI.Output(table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "NODE\tSTATUS\tCPU\tMEMORY\tUPTIME")
			for _, n := range nodes {
				fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s/%s\t%ds\n",
					n.Node, n.Status, n.CPU*100, megabytes(n.Mem), megabytes(n.MaxMem), n.Uptime)
			}
		}))
		return 0
	})
}
