package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the canonicalization rules in application order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, logger, err := rootOpts.setup(cmd)
			if err != nil {
				return out.Fail(err)
			}
			v, err := newValidator(cfg, logger)
			if err != nil {
				return out.Fail(err)
			}

			rules := v.Rules()
			return out.Success(map[string][]string{"rules": rules}, func(w io.Writer) {
				for i, name := range rules {
					fmt.Fprintf(w, "%2d. %s\n", i+1, name)
				}
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
