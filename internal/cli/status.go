package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/meshsync/internal/core/config"
	"github.com/vietddude/meshsync/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent recovery sessions for this node",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx,
		`SELECT id, partition_id, strategy, status, progress, current_step
		 FROM recovery_sessions WHERE node_id = $1
		 ORDER BY started_at DESC LIMIT 20`, cfg.Node.ID)
	if err != nil {
		slog.Error("Failed to query recovery sessions", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SESSION\tPARTITION\tSTRATEGY\tSTATUS\tPROGRESS\tSTEP")

	for rows.Next() {
		var id, partitionID, strategy, status, step string
		var progress int
		if err := rows.Scan(&id, &partitionID, &strategy, &status, &progress, &step); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\n", id, partitionID, strategy, status, progress, step)
	}
	_ = w.Flush()
}
