package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/meshsync/internal/core/config"
	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/infra/storage/postgres"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [session_id]",
	Short: "Mark an orphaned recovery session as cancelled",
	Args:  cobra.ExactArgs(1),
	Run:   runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) {
	sessionID := args[0]

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

	// Only flips sessions no orchestrator owns anymore. A running daemon
	// should be asked through its API instead.
	query := `UPDATE recovery_sessions
		SET status = $1, completed_at = now()
		WHERE id = $2 AND status = $3`
	res, err := db.ExecContext(ctx, query,
		string(domain.RecoveryStatusCancelled), sessionID, string(domain.RecoveryStatusRunning))
	if err != nil {
		slog.Error("Failed to cancel session", "error", err)
		os.Exit(1)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		fmt.Printf("No running session with id %s\n", sessionID)
		os.Exit(1)
	}
	fmt.Printf("Successfully cancelled session %s\n", sessionID)
}
