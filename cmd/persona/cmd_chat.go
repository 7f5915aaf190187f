package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd(flags *rootFlags, rt func() *runtime) *cobra.Command {
	var showTraits bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the mirror; without arguments opens an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return chatOnce(cmd, rt(), flags.userID, strings.Join(args, " "), showTraits)
			}

			fmt.Fprintf(out, "mirror chat as %q (/quit to exit, /profile to inspect)\n", flags.userID)
			return chatLoop(cmd, rt(), flags.userID, cmd.InOrStdin(), showTraits)
		},
	}
	cmd.Flags().BoolVar(&showTraits, "traits", false, "Print detected emotion and trait updates after each reply")
	return cmd
}

func chatLoop(cmd *cobra.Command, r *runtime, userID string, in io.Reader, showTraits bool) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/profile":
			if err := printProfile(cmd, r, userID); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		}
		if err := chatOnce(cmd, r, userID, line, showTraits); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func chatOnce(cmd *cobra.Command, r *runtime, userID, message string, showTraits bool) error {
	res, err := r.persona.ProcessMessage(cmd.Context(), userID, message)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.ReplyText)
	if showTraits {
		fmt.Fprintf(out, "  [%s/%s source=%s traits=%d stability=%.3f]\n",
			res.DetectedEmotion, res.ActiveArchetype, res.ReplySource, res.TraitsUpdated, res.StabilityIndex)
	}
	return nil
}
