package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smallyunet/userop-validator/cmd/run"
	"github.com/smallyunet/userop-validator/cmd/validate"
	"github.com/smallyunet/userop-validator/cmd/version"
)

var rootCmd = &cobra.Command{
	Use:   "userop-validator",
	Short: "ERC-4337 UserOperation admission validator",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Err(err).Msg("failed to run command")
		os.Exit(1)
	}
}

func main() {
	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(validate.Cmd)
	rootCmd.AddCommand(version.Cmd)

	Execute()
}
