package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/bulkflow/internal/cmd/base"
	"github.com/hashicorp-forge/bulkflow/internal/cmd/commands/abort"
	"github.com/hashicorp-forge/bulkflow/internal/cmd/commands/index"
	"github.com/hashicorp-forge/bulkflow/internal/cmd/commands/migrate"
	"github.com/hashicorp-forge/bulkflow/internal/cmd/commands/serve"
	"github.com/hashicorp-forge/bulkflow/internal/cmd/commands/status"
	"github.com/hashicorp-forge/bulkflow/internal/cmd/commands/submit"
	"github.com/hashicorp-forge/bulkflow/internal/cmd/commands/version"
)

func commands(log hclog.Logger, ui cli.Ui) map[string]cli.CommandFactory {
	b := base.NewCommand(log, ui)

	return map[string]cli.CommandFactory{
		"abort": func() (cli.Command, error) {
			return &abort.Command{Command: b}, nil
		},
		"index": func() (cli.Command, error) {
			return &index.Command{Command: b}, nil
		},
		"migrate": func() (cli.Command, error) {
			return &migrate.Command{Command: b}, nil
		},
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"status": func() (cli.Command, error) {
			return &status.Command{Command: b}, nil
		},
		"submit": func() (cli.Command, error) {
			return &submit.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
