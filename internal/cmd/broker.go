package cmd

import (
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/Iron-Ham/lockstep/internal/broker"
	"github.com/Iron-Ham/lockstep/internal/signal"
	"github.com/spf13/cobra"
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run a standalone broker that logs worker frames",
	Long: `Run the signal broker on its own. Every frame a worker sends is
logged; nothing is sent back, so workers armed at a breakpoint wait there
until their breakpoint timeout. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runBroker,
}

var brokerAddr string

func init() {
	rootCmd.AddCommand(brokerCmd)

	brokerCmd.Flags().StringVar(&brokerAddr, "addr", "", "listen address (default from broker.host and broker.port)")
}

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	addr := brokerAddr
	if addr == "" {
		addr = cfg.Broker.Addr()
	}

	b := broker.New(
		broker.WithLogger(logger),
		broker.WithHandler(func(from signal.WorkerID, sig signal.Signal) {
			logger.WithWorker(int(from)).Info("frame received", "frame", sig.String())
		}),
	)
	if err := b.Start(addr); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "broker listening on %s\n", b.Addr())

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
	return b.Stop()
}
