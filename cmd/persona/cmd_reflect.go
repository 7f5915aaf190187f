package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newReflectCmd(flags *rootFlags, rt func() *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reflect <message>",
		Short: "Update the persona from a message and force a new snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rt().persona.Reflect(cmd.Context(), flags.userID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snapshot:  %s\n", res.SnapshotID)
			fmt.Fprintf(out, "Extracted: %d\n", res.TraitsExtracted)
			fmt.Fprintf(out, "Updated:   %d\n", res.TraitsUpdated)
			fmt.Fprintf(out, "Stability: %.3f\n", res.StabilityIndex)
			fmt.Fprintf(out, "Summary:   %s\n", res.Summary)
			return nil
		},
	}
}
