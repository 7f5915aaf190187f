package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/repository"
)

func newProfileCmd(flags *rootFlags, rt func() *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the latest persona snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printProfile(cmd, rt(), flags.userID)
		},
	}
}

func newMetricsCmd(flags *rootFlags, rt func() *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List the stored trait metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics, err := rt().persona.Metrics(cmd.Context(), flags.userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(metrics) == 0 {
				fmt.Fprintf(out, "No trait metrics for %q yet.\n", flags.userID)
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRAIT\tSCORE\tCONFIDENCE\tEVIDENCE")
			for _, m := range metrics {
				fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%d\n", m.TraitName, m.Score, m.Confidence, m.EvidenceCount)
			}
			return w.Flush()
		},
	}
}

func printProfile(cmd *cobra.Command, r *runtime, userID string) error {
	snapshot, err := r.persona.Profile(cmd.Context(), userID)
	out := cmd.OutOrStdout()
	if errors.Is(err, repository.ErrNotFound) {
		fmt.Fprintf(out, "No persona snapshot for %q yet.\n", userID)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Snapshot:  %s\n", snapshot.ID)
	fmt.Fprintf(out, "Created:   %s\n", snapshot.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Stability: %.3f (%s)\n", snapshot.StabilityIndex, domain.StabilityLevel(snapshot.StabilityIndex))
	fmt.Fprintf(out, "Summary:   %s\n", snapshot.SummaryText)

	groups := make([]string, 0, len(snapshot.PersonaVector))
	for group := range snapshot.PersonaVector {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, group := range groups {
		fmt.Fprintf(w, "%s\n", group)
		traits := snapshot.PersonaVector[group]
		names := make([]string, 0, len(traits))
		for name := range traits {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ts := traits[name]
			fmt.Fprintf(w, "  %s\tscore=%.3f\tconfidence=%.3f\n", name, ts.Score, ts.Confidence)
		}
	}
	return w.Flush()
}
