/*
main.go - Application entry point

PURPOSE:
  Starts the crewtime command. Configuration, storage and server startup
  live in package cli.

EXAMPLES:
  # Device API with background sync
  crewtime serve --config ./crewtime.yaml

  # Shared hub
  CREWTIME_HUB_TOKEN=s3cret crewtime hub

  # Monthly export
  crewtime export --month 2024-03 --format xlsx

SEE ALSO:
  - cli/root.go: Command tree
  - config/config.go: Settings and environment variables
*/
package main

import (
	"context"
	"os"

	"github.com/warp/crewtime/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
