package cli

import (
	"fmt"

	"competition-service/internal/config"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
)

// NewResetCmd wipes results, submissions and states and re-seeds competitions.
func NewResetCmd(configPath *string) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all results and competition states",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("reset is destructive; pass --yes to confirm")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setLogLevel(cfg.Log.Level)

			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.service.Reset(cmd.Context()); err != nil {
				return err
			}
			log.Infof("all results deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")
	return cmd
}

// NewCompetitionsCmd prints the loaded competitions and their state.
func NewCompetitionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "competitions",
		Short: "List loaded competitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setLogLevel(cfg.Log.Level)

			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			active, _, err := rt.service.ActiveCompetitionID(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			catalog := rt.service.Catalog()
			for _, comp := range catalog.List() {
				state, err := rt.service.CompetitionState(ctx, comp.ID)
				if err != nil {
					return err
				}
				marker := " "
				if comp.ID == active {
					marker = "*"
				}
				status := "stopped"
				if state.IsActive {
					status = "running"
				}
				fmt.Fprintf(out, "%s %s  %-30s %d levels  %s\n", marker, comp.ID, comp.Name, len(comp.Levels), status)
			}
			if catalog.DefaultID() == "" {
				fmt.Fprintln(out, "no competitions found in", cfg.Competitions.Dir)
			}
			return nil
		},
	}
}
