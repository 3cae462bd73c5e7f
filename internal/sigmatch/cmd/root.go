package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sigmatch",
	Short: "Match and rename functions across binary versions",
	Long: `sigmatch generates structural signatures for every function in a binary
and applies them to a second, related binary so that function names carry
over even though addresses differ.

Signatures come in four flavors, applied from most to least reliable:
formal (exact structure), string-based, immediate-based, and fuzzy
(loose structure). Functions the signatures cannot identify directly can
still be named through call references from functions that matched.`,
	SilenceUsage: true,
}

func Execute() {
	// Bypass fang's markdown rendering when output is being piped.
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
