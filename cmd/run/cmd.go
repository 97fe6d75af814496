package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smallyunet/userop-validator/bootstrap"
	"github.com/smallyunet/userop-validator/config"
	"github.com/smallyunet/userop-validator/metrics"
)

var (
	cfg        config.Config
	entryPoint string
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the validator JSON-RPC server",
	RunE: func(command *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(command.Context())
		defer cancel()

		if entryPoint != "" {
			if !common.IsHexAddress(entryPoint) {
				return fmt.Errorf("invalid entrypoint address: %s", entryPoint)
			}
			cfg.EntryPointAddress = common.HexToAddress(entryPoint)
		}
		cfg.SetDefaults()

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

		validator, err := bootstrap.New(cfg, logger, metrics.NewCollector(logger))
		if err != nil {
			return err
		}
		defer validator.Close()

		osSig := make(chan os.Signal, 1)
		signal.Notify(osSig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-osSig
			logger.Info().Msg("shutdown signal received")
			cancel()
		}()

		return validator.Run(ctx, func() {})
	},
}

func init() {
	Cmd.Flags().StringVar(&cfg.RPCHost, "rpc-host", "localhost", "host for the JSON-RPC API server")
	Cmd.Flags().IntVar(&cfg.RPCPort, "rpc-port", 8545, "port for the JSON-RPC API server")
	Cmd.Flags().IntVar(&cfg.MetricsPort, "metrics-port", 0, "port for the metrics server, 0 to disable")
	Cmd.Flags().StringVar(&cfg.DatabaseDir, "database-dir", "", "path to the reputation database directory, empty for in-memory")
	Cmd.Flags().StringVar(&entryPoint, "entrypoint", config.DefaultEntryPointAddress, "EntryPoint contract address")
	Cmd.Flags().Uint64Var(&cfg.ThrottleThreshold, "throttle-threshold", 2, "failed operations before an entity is throttled")
	Cmd.Flags().Uint64Var(&cfg.BanThreshold, "ban-threshold", 5, "failed operations before an entity is banned")
	Cmd.Flags().Uint64Var(&cfg.RateLimit, "rate-limit", 50, "requests per second allowed per client")
	Cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
}
