package submit

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp-forge/bulkflow/internal/cmd/base"
	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
)

type Command struct {
	*base.Command

	flagConfig     string
	flagID         string
	flagAction     string
	flagQuery      string
	flagUsername   string
	flagRepository string
	flagScroller   string
	flagBucketSize int
	flagBatchSize  int
	flagQueryLimit int64
	flagParams     base.MapValue
	flagWait       time.Duration
}

func (c *Command) Synopsis() string {
	return "Submit a bulk command"
}

func (c *Command) Help() string {
	return `Usage: bulkflow submit -action=<name> -query=<query> [options]

  Schedule a bulk command and print its id. With -wait, block until the
  command is COMPLETED or ABORTED and print its final status.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("submit", flag.ContinueOnError))
	f.ConfigVar(&c.flagConfig)
	f.StringVar(&c.flagID, "id", "", "Command id. Generated when unset.")
	f.StringVar(&c.flagAction, "action", "", "(Required) Action to run over the matched documents.")
	f.StringVar(&c.flagQuery, "query", "", "(Required) Query selecting the documents.")
	f.StringVar(&c.flagUsername, "username", os.Getenv("USER"), "User submitting the command.")
	f.StringVar(&c.flagRepository, "repository", "", "Repository to query. Defaults to the default repository.")
	f.StringVar(&c.flagScroller, "scroller", "", "Scroll strategy: document or static.")
	f.IntVar(&c.flagBucketSize, "bucket-size", 0, "Ids per bucket. The action default applies when zero.")
	f.IntVar(&c.flagBatchSize, "batch-size", 0, "Batch size carried to the action workers.")
	f.Int64Var(&c.flagQueryLimit, "query-limit", 0, "Stop after this many documents when positive.")
	if c.flagParams == nil {
		c.flagParams = base.MapValue{}
	}
	f.Var(c.flagParams, "param", "Action parameter as key=value. Repeatable.")
	f.DurationVar(&c.flagWait, "wait", 0, "Wait up to this long for the command to finish.")
	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagAction == "" || c.flagQuery == "" {
		c.UI.Error("action and query flags are required")
		return 1
	}

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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cmd := &bulk.Command{
		ID:         c.flagID,
		Action:     c.flagAction,
		Query:      c.flagQuery,
		Username:   c.flagUsername,
		Repository: c.flagRepository,
		Scroller:   c.flagScroller,
		BucketSize: c.flagBucketSize,
		BatchSize:  c.flagBatchSize,
		QueryLimit: c.flagQueryLimit,
		Params:     c.flagParams,
	}
	id, err := svc.Submit(ctx, cmd)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error submitting command: %v", err))
		return 1
	}

	if c.flagWait <= 0 {
		c.UI.Output(id)
		return 0
	}

	status, err := svc.Await(ctx, id, c.flagWait)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error waiting for command %s: %v", id, err))
		return 1
	}
	if err := c.OutputJSON(status); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}
