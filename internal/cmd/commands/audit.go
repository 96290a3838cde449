package commands

import (
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/internal/cmd/base"
	"github.com/MrEthical07/pveauth/resources"
)

// AuditCommand lists nodes and prints the audit trail the client recorded while doing so.
// Entries are sanitized before they reach the table.
type AuditCommand struct {
	*base.Command

	flagLimit int
}

func (c *AuditCommand) Synopsis() string {
	return "Run a node listing and print the resulting audit trail"
}

func (c *AuditCommand) Help() string {
	return `Usage: pvectl audit [options]

  Authenticates, lists the cluster nodes, and prints the audit entries the
  client recorded, including failed authentication attempts and retries.` +
		c.Flags().Help()
}

func (c *AuditCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("audit", flag.ContinueOnError))
	f.IntVar(&c.flagLimit, "limit", 0, "Print only the most recent N entries (0 for all).")
	return f
}

func (c *AuditCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx, cancel := c.Context()
	defer cancel()

	return withService(c.Command, func(client *pveauth.Client, svc *resources.Service) int {
		code := 0
		if _, err := svc.ListNodes(ctx); err != nil {
			c.UI.Warn(fmt.Sprintf("listing failed: %v", err))
			code = 1
		}
		entries := client.AuditLogs(c.flagLimit)
		c.UI.Output(table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "TIME\tRESULT\tOPERATION\tRESOURCE\tUSER\tDETAILS")
			for _, e := range entries {
				e = pveauth.SanitizeEntry(e)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.UTC().Format(time.RFC3339), e.Result, e.Operation, e.Resource, e.User, e.Details)
			}
		}))
		return code
	})
}
