package commands

import (
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/internal/cmd/base"
	"github.com/MrEthical07/pveauth/resources"
)

type StorageCommand struct {
	*base.Command

	flagNode    string
	flagStorage string
	flagContent string
}

func (c *StorageCommand) Synopsis() string {
	return "List storage or the volumes on one storage"
}

func (c *StorageCommand) Help() string {
	return `Usage: pvectl storage [options]

  Without options, lists the cluster storage definitions. With -node and
  -storage, lists the volumes on that storage, optionally filtered by
  -content (iso, backup, vztmpl, images).` +
		c.Flags().Help()
}

func (c *StorageCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("storage", flag.ContinueOnError))
	f.StringVar(&c.flagNode, "node", "", "Node that hosts the storage.")
	f.StringVar(&c.flagStorage, "storage", "", "Storage to list volumes of.")
	f.StringVar(&c.flagContent, "content", "", "Only list volumes of this content type.")
	return f
}

func (c *StorageCommand) Run(args []string) int {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if (c.flagNode == "") != (c.flagStorage == "") {
		c.UI.Error("-node and -storage must be given together")
		return 1
	}

	ctx, cancel := c.Context()
	defer cancel()

	return withService(c.Command, func(_ *pveauth.Client, svc *resources.Service) int {
		if c.flagStorage != "" {
			content, err := svc.StorageContent(ctx, c.flagNode, c.flagStorage, c.flagContent)
			if err != nil {
				return reportError(c.Command, "storage content", err)
			}
			c.UI.Output(table(func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "VOLID\tCONTENT\tFORMAT\tSIZE")
				for _, v := range content {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.VolID, v.Content, v.Format, megabytes(v.Size))
				}
			}))
			return 0
		}

		storages, err := svc.ListStorage(ctx)
		if err != nil {
			return reportError(c.Command, "storage", err)
		}
		c.UI.Output(table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "STORAGE\tTYPE\tCONTENT")
			for _, s := range storages {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Storage, s.Type, s.Content)
			}
		}))
		return 0
	})
}
