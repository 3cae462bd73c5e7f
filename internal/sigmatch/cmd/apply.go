package cmd

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sigmatch/internal/analysis"
	"sigmatch/internal/logging"
	"sigmatch/internal/sig"
	"sigmatch/internal/ui/report"
)

// Report is the machine-readable result of an apply run, used for
// regression testing and scripting.
type Report struct {
	Digest        string       `json:"digest" jsonschema:"title=Digest,description=SHA-256 of the analyzed binary"`
	Binary        string       `json:"binary" jsonschema:"title=Binary,description=Path of the analyzed binary"`
	SignatureFile string       `json:"signatureFile" jsonschema:"title=Signature File,description=Signature file that was applied"`
	Formal        int          `json:"formal" jsonschema:"title=Formal Matches"`
	Strings       int          `json:"strings" jsonschema:"title=String Matches"`
	Immediates    int          `json:"immediates" jsonschema:"title=Immediate Matches"`
	Fuzzy         int          `json:"fuzzy" jsonschema:"title=Fuzzy Matches"`
	Renamed       int          `json:"renamed" jsonschema:"title=Renamed,description=Number of functions renamed"`
	Renames       []RenameInfo `json:"renames,omitempty" jsonschema:"title=Renames"`
}

// RenameInfo is one applied rename in a Report.
type RenameInfo struct {
	Address string `json:"address"`
	From    string `json:"from"`
	To      string `json:"to"`
}

var applyCmd = &cobra.Command{
	Use:   "apply <binary> <sigfile>",
	Short: "Apply a signature file to a binary",
	Long: `Generate signatures for the given binary, load a previously built
signature file, match the two signature sets, and rename every function
the matches identify. Formal matches are applied first, then string and
immediate based matches, and finally fuzzy matches.`,
	Example: `
# Propagate names from an annotated build into a patched one
sigmatch apply patched.elf annotated.sig

# Machine-readable output
sigmatch apply patched.elf annotated.sig --json
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return runApply(cmd.OutOrStdout(), args[0], args[1], asJSON)
	},
}

func init() {
	applyCmd.Flags().Bool("json", false, "emit a JSON report instead of text")
	rootCmd.AddCommand(applyCmd)
}

func runApply(w io.Writer, binPath, sigPath string, asJSON bool) error {
	lg := logging.NewLogger()
	defer lg.Close()

	start := time.Now()

	bin, err := analysis.Open(binPath, lg.Logger)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", binPath, err)
	}
	defer bin.Close()

	local, err := sig.Generate(bin, lg.Logger)
	if err != nil {
		return err
	}

	external, err := sig.LoadFile(sigPath)
	if err != nil {
		return err
	}

	sets := sig.Match(local, external, lg.Logger)
	renamer := sig.NewRenamer(bin, lg.Logger)
	renamed := renamer.Apply(local, external, sets)

	rep := Report{
		Binary:        binPath,
		SignatureFile: sigPath,
		Renamed:       renamed,
	}
	if digest, err := fileDigest(binPath); err == nil {
		rep.Digest = digest
	}
	for _, set := range sets {
		switch set.Category {
		case "formal":
			rep.Formal = len(set.Pairs)
		case "strings":
			rep.Strings = len(set.Pairs)
		case "immediates":
			rep.Immediates = len(set.Pairs)
		case "fuzzy":
			rep.Fuzzy = len(set.Pairs)
		}
	}
	for _, r := range renamer.Renames() {
		rep.Renames = append(rep.Renames, RenameInfo{
			Address: fmt.Sprintf("%x", r.Addr),
			From:    r.From,
			To:      r.To,
		})
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	summary := report.Summary{
		Binary:        binPath,
		SignatureFile: sigPath,
		Renamed:       renamed,
		Elapsed:       time.Since(start),
	}
	for _, set := range sets {
		summary.Matches = append(summary.Matches, report.CategoryCount{
			Name:  set.Category,
			Count: len(set.Pairs),
			Fuzzy: set.Fuzzy,
		})
	}
	for _, r := range renamer.Renames() {
		summary.Renames = append(summary.Renames, report.RenameLine{
			Address: r.Addr,
			From:    r.From,
			To:      r.To,
			Display: analysis.Demangle(r.To),
		})
	}
	report.Render(w, summary)
	return nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
