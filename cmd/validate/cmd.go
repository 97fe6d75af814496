package validate

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smallyunet/userop-validator/bootstrap"
	"github.com/smallyunet/userop-validator/config"
	"github.com/smallyunet/userop-validator/metrics"
	"github.com/smallyunet/userop-validator/models"
	"github.com/smallyunet/userop-validator/services/validator"
)

var logLevel string

// Cmd validates a single UserOperation read from a JSON file against a
// fresh simulation environment and prints the result. Exit code 1 when the
// operation is rejected.
var Cmd = &cobra.Command{
	Use:   "validate <userop.json>",
	Short: "Validates a UserOperation from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(command *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		static := validator.ValidateUserOpStructure(raw)
		if !static.IsValid {
			return printResult(&models.SimulationResult{
				IsValid: false,
				Errors:  static.Errors,
			})
		}

		var opArgs models.UserOperationArgs
		if err := json.Unmarshal(data, &opArgs); err != nil {
			return fmt.Errorf("failed to decode user operation: %w", err)
		}
		op, err := opArgs.ToPackedUserOperation()
		if err != nil {
			return fmt.Errorf("failed to decode user operation: %w", err)
		}

		v, err := bootstrap.New(config.Config{}, logger, metrics.NopCollector)
		if err != nil {
			return err
		}
		defer v.Close()

		return printResult(v.Driver.SimulateValidation(op))
	},
}

func printResult(result *models.SimulationResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.IsValid {
		os.Exit(1)
	}
	return nil
}

func init() {
	Cmd.Flags().StringVar(&logLevel, "log-level", "error", "log level (trace, debug, info, warn, error)")
}
