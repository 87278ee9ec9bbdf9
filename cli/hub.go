package cli

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/warp/crewtime/api"
	"github.com/warp/crewtime/store/sqlite"
)

func newHubCommand(load configLoader) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Run the remote hub devices sync with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Hub.Port = port
			}

			hub, err := sqlite.NewHub(cfg.Hub.Database)
			if err != nil {
				return err
			}
			defer hub.Close()

			if cfg.Hub.Token == "" {
				log.Println("Warning: hub.token is empty, the hub accepts unauthenticated requests")
			}
			router := api.NewHubRouter(&api.HubHandler{Hub: hub}, cfg.Hub.Token)
			return listenAndServe(cmd.Context(), cfg.Hub.Port, router, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides hub.port)")
	return cmd
}
