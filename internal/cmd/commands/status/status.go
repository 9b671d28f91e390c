package status

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/bulkflow/internal/cmd/base"
	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Print the status of a bulk command"
}

func (c *Command) Help() string {
	return `Usage: bulkflow status [options] <command-id>

  Print the stored status of a bulk command as JSON. Unknown ids print the
  UNKNOWN status and exit with code 2.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("status", flag.ContinueOnError))
	f.ConfigVar(&c.flagConfig)
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("expected exactly one command id")
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}

	st, err := base.OpenStore(cfg, c.Log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer func() { _ = st.Close() }()

	return Print(c.Command, st, f.Arg(0))
}

// Print writes the status of id and returns the exit code.
func Print(c *base.Command, store bulk.StatusStore, id string) int {
	status, err := store.GetStatus(context.Background(), id)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading status of %s: %v", id, err))
		return 1
	}
	if err := c.OutputJSON(status); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if status.IsUnknown() {
		return 2
	}
	return 0
}
