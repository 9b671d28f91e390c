package main

import (
	"os"

	"github.com/hashicorp-forge/bulkflow/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
