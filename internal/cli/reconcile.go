package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewReconcileCmd rebuilds the leaderboard mirror of a game from player records.
func NewReconcileCmd(configPath *string) *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild a game's leaderboard mirror from the player record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if gameID == "" {
				return fmt.Errorf("--game is required")
			}
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			d, err := buildDeps(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			n, err := d.reconciler.Rebuild(cmd.Context(), gameID)
			if err != nil {
				return err
			}
			logger.Info("reconcile finished", zap.String("game_id", gameID), zap.Int("players", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game id to rebuild")
	return cmd
}
