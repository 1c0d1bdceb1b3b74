package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguard/internal/classifier"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <command> [args...]",
	Short: "Show whether a command would run one-shot or in an interactive session",
	Args:  cobra.MinimumNArgs(1),
	// Flags belong to the classified command, e.g. "docker run -it".
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		line := strings.Join(args, " ")
		c := classifier.New().Classify(line)
		mode := "one-shot"
		if c.Interactive {
			mode = "interactive"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", line, mode, c.Reason)
	},
}
