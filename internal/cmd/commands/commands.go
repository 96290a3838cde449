// Package commands implements the pvectl subcommands.
package commands

import (
	"bytes"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/internal/cmd/base"
	"github.com/MrEthical07/pveauth/resources"
)

func table(write func(w *tabwriter.Writer)) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	write(w)
	_ = w.Flush()
	return buf.String()
}

// withService builds a client, runs fn, and closes the client. The returned code is the
// process exit code.
func withService(c *base.Command, fn func(client *pveauth.Client, svc *resources.Service) int) int {
	client, ok := c.Client()
	if !ok {
		return 1
	}
	defer client.Close()
	return fn(client, resources.New(client, resources.WithLogger(c.Log.Named("resources"))))
}

// reportError prints err and returns the exit code. Partial listings are warnings.
func reportError(c *base.Command, what string, err error) int {
	if errors.Is(err, resources.ErrPartialListing) {
		c.UI.Warn(fmt.Sprintf("warning: %s incomplete: %v", what, err))
		return 0
	}
	c.UI.Error(fmt.Sprintf("error listing %s: %v", what, err))
	return 1
}

func megabytes(b int64) string {
	return fmt.Sprintf("%d MiB", b/(1024*1024))
}
