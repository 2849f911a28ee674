package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cycles/pkg/cycles"
)

const modulePath = "github.com/mesh-intelligence/cycles"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the cycles version",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "cycles v%s\nmodule: %s\n", cycles.Version, modulePath)
			return nil
		},
	}
}
