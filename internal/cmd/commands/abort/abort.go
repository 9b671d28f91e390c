package abort

import (
	"context"
	"errors"
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
	return "Abort a bulk command"
}

func (c *Command) Help() string {
	return `Usage: bulkflow abort [options] <command-id>

  Request the abort of a scheduled or running bulk command. The request is
  applied by the status stage of a running serve process; a command that
  completes first stays COMPLETED. Commands that are already COMPLETED or
  ABORTED are left unchanged.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("abort", flag.ContinueOnError))
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
	id := f.Arg(0)

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}

	svc, producer, st, err := base.NewService(cfg, c.Log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer func() { _ = st.Close() }()
	defer producer.Close()

	status, err := svc.Abort(context.Background(), id)
	if errors.Is(err, bulk.ErrUnknownCommand) {
		c.UI.Error(fmt.Sprintf("no bulk command with id %s", id))
		return 2
	}
	if err != nil {
		c.UI.Error(fmt.Sprintf("error aborting %s: %v", id, err))
		return 1
	}

	if status.State.IsTerminal() {
		c.UI.Warn(fmt.Sprintf("command %s is already %s", id, status.State))
	} else {
		c.UI.Info(fmt.Sprintf("abort of %s requested (state %s)", id, status.State))
	}
	if err := c.OutputJSON(status); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}
