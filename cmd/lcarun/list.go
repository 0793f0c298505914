package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/lcarun/internal/domain/resolve"
	"github.com/okian/lcarun/internal/domain/schema"
)

// newListCommand lists descriptors of one type, optionally filtered by a
// case-insensitive substring.
func newListCommand(c *cli, use, short string, t schema.RefType) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [filter]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := c.client().Descriptors(cmd.Context(), t)
			if err != nil {
				return fmt.Errorf("list %s: %w", use, err)
			}

			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
			for _, ref := range refs {
				if len(args) == 1 && !resolve.ContainsAny(ref.Name, args, nil) {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ref.ID, ref.Name, ref.Category)
			}
			return tw.Flush()
		},
	}
}
