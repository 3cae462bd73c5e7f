package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sigmatch/internal/analysis"
	"sigmatch/internal/logging"
	"sigmatch/internal/sig"
)

var buildCmd = &cobra.Command{
	Use:   "build <binary>",
	Short: "Generate a signature file from a binary",
	Long: `Analyze the given binary, generate signatures for every function and
unique string, and persist them to a signature file.`,
	Example: `
# Write signatures next to the binary
sigmatch build firmware.elf -o firmware.sig
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return runBuild(args[0], output)
	},
}

func init() {
	buildCmd.Flags().StringP("output", "o", sig.DefaultFileName, "signature file to write")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(binPath, sigPath string) error {
	lg := logging.NewLogger()
	defer lg.Close()

	if filepath.Ext(sigPath) == "" {
		sigPath += sig.FileExt
	}

	bin, err := analysis.Open(binPath, lg.Logger)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", binPath, err)
	}
	defer bin.Close()
	lg.Info("analyzed binary", "path", binPath,
		"functions", humanize.Comma(int64(bin.FunctionCount())))

	store, err := sig.Generate(bin, lg.Logger)
	if err != nil {
		return err
	}

	size, err := store.SaveFile(sigPath)
	if err != nil {
		return err
	}
	lg.Info("wrote signatures", "path", sigPath, "size", humanize.Bytes(uint64(size)))
	return nil
}
