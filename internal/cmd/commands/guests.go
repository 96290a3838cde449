package commands

import (
	"flag"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/internal/cmd/base"
	"github.com/MrEthical07/pveauth/resources"
)

// GuestsCommand lists virtual machines or containers depending on Containers.
type GuestsCommand struct {
	*base.Command

	Containers bool

	flagNode string
}

func (c *GuestsCommand) noun() string {
	if c.Containers {
		return "containers"
	}
	return "vms"
}

func (c *GuestsCommand) Synopsis() string {
	if c.Containers {
		return "List LXC containers"
	}
	return "List QEMU virtual machines"
}

func (c *GuestsCommand) Help() string {
	return `Usage: pvectl ` + c.noun() + ` [options]

  Lists guests on one node, or on every node when -node is omitted. Nodes that
  cannot be queried are reported as a warning and skipped.` +
		c.Flags().Help()
}

func (c *GuestsCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet(c.noun(), flag.ContinueOnError))
	f.StringVar(&c.flagNode, "node", "", "Only list guests on this node.")
	return f
}

func (c *GuestsCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx, cancel := c.Context()
	defer cancel()

	return withService(c.Command, func(_ *pveauth.Client, svc *resources.Service) int {
		list := svc.ListVMs
		if c.Containers {
			list = svc.ListContainers
		}
		guests, err := list(ctx, c.flagNode)

		code := 0
		if err != nil {
			code = reportError(c.Command, c.noun(), err)
			if code != 0 {
				return code
			}
		}
		c.UI.Output(table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "VMID\tNAME\tNODE\tSTATUS\tMEMORY")
			for _, g := range guests {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", g.VMID, g.Name, g.Node, g.Status, megabytes(g.MaxMem))
			}
		}))
		return code
	})
}

type VMStatusCommand struct {
	*base.Command

	flagContainer bool
}

func (c *VMStatusCommand) Synopsis() string {
	return "Show the current status of a guest"
}

func (c *VMStatusCommand) Help() string {
	return `Usage: pvectl vm-status [options] <node> <vmid>

  Prints the current status of a virtual machine, or of a container with
  -container.` +
		c.Flags().Help()
}

func (c *VMStatusCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("vm-status", flag.ContinueOnError))
	f.BoolVar(&c.flagContainer, "container", false, "Treat vmid as an LXC container.")
	return f
}

func (c *VMStatusCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 2 {
		c.UI.Error("expected <node> <vmid>")
		return 1
	}
	node := flags.Arg(0)
	vmid, err := strconv.Atoi(flags.Arg(1))
	if err != nil {
		c.UI.Error(fmt.Sprintf("invalid vmid %q", flags.Arg(1)))
		return 1
	}

	ctx, cancel := c.Context()
	defer cancel()

	return withService(c.Command, func(_ *pveauth.Client, svc *resources.Service) int {
		status := svc.VMStatus
		if c.flagContainer {
			status = svc.ContainerStatus
		}
		st, err := status(ctx, node, vmid)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error reading status: %v", err))
			return 1
		}
		c.UI.Output(table(func(w *tabwriter.Writer) {
			for _, key := range []string{"vmid", "name", "status", "qmpstatus", "cpus", "mem", "maxmem", "uptime"} {
				if v, ok := st[key]; ok {
					fmt.Fprintf(w, "%s:\t%v\n", key, v)
				}
			}
		}))
		return 0
	})
}
