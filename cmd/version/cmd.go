package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallyunet/userop-validator/api"
)

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the current version of the validator",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("%s\n", api.Version)
	},
}
