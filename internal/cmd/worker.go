package cmd

import (
	"os"

	"github.com/Iron-Ham/lockstep/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a single worker configured from the environment",
	Long: `Run one worker process. The worker reads its configuration from
LSWORKER_* environment variables, connects to the broker and runs its script.
The driver starts workers this way; running it by hand is mostly useful
against a standalone 'lockstep broker'.

The process exits with the worker's exit code:
  0 SUCCESS, 1 TRY_LOCK_FAILED, 2 BREAKPOINT_TIMEOUT,
  3 WORKER_LOCK_TIMEOUT, 4 HALT_IN_MUTEX_AREA, 5 CONCURRENT_ACCESS_ERROR`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(worker.Main(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
