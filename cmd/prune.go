package cmd

import (
	"github.com/mgmu/hortus/internal/records"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete harvests whose plant no longer exists",
	Long: `Plant deletion removes the harvests of the plant too. On stores without
transactions an interrupted deletion can leave harvests behind; prune removes
them. The server can also do this periodically, see prune.interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer env.close(ctx)

		n, err := records.NewService(env.db).PruneOrphans(ctx)
		if err != nil {
			env.log.Error("Prune failed", zap.Error(err))
			return err
		}
		env.log.Info("Prune done", zap.Int64("removed", n))
		cmd.Printf("%d orphan harvest(s) removed\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
