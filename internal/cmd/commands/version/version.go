package version

import (
	"github.com/hashicorp-forge/bulkflow/internal/cmd/base"
	"github.com/hashicorp-forge/bulkflow/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the bulkflow version"
}

func (c *Command) Help() string {
	return `Usage: bulkflow version

  Print the bulkflow version.`
}

func (c *Command) Run(_ []string) int {
	c.UI.Output("bulkflow " + version.FullVersion())
	return 0
}
