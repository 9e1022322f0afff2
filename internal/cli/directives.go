package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nugo-cli/nugo/pkg/directive"
	"github.com/nugo-cli/nugo/pkg/errors"
)

// newDirectivesCmd creates the directives command: print the package refs
// parsed from a script, one "id" or "id@version" per line.
func newDirectivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directives <script>",
		Short: "Print the package directives parsed from a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(errors.ErrCodeFileNotFound, err, "read script %s", args[0])
			}
			for _, ref := range directive.Parse(string(src)) {
				fmt.Println(ref.String())
			}
			for _, load := range directive.ParseLoads(string(src)) {
				fmt.Println("load:" + load)
			}
			return nil
		},
	}
}
