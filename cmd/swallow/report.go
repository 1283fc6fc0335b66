package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jward/swallow"
	"github.com/jward/swallow/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagKind    string
	flagVerdict string
	flagPackage string
	flagLimit   int
	flagOffset  int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report on recorded findings",
	Long:  "Aggregate views over the findings database. All line numbers are 1-based; columns are 0-based.",
}

func init() {
	reportCmd.AddCommand(summaryCmd)
	reportCmd.AddCommand(packagesCmd)
	reportCmd.AddCommand(findingsCmd)
}

// --- Helpers ---

// openStore opens the Store from the --db flag path (or default).
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	dbPath := resolveDBPath(repoRoot, cfg)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'swallow scan' first)", dbPath)
	}

	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// --- Commands ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Corpus-wide finding counts",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("summary", err)
	}
	defer s.Close()

	sum, err := swallow.NewReportBuilder(s).Summary()
	if err != nil {
		return outputError("summary", err)
	}

	return outputResult(CLIResult{
		Command: "summary",
		Results: toCLISummary(sum),
	})
}

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "Per-package finding breakdown",
	Args:  cobra.NoArgs,
	RunE:  runPackages,
}

func runPackages(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError("packages", err)
	}
	defer s.Close()

	stats, err := swallow.NewReportBuilder(s).PackageBreakdown()
	if err != nil {
		return outputError("packages", err)
	}

	count := len(stats)
	return outputResult(CLIResult{
		Command:    "packages",
		Results:    toCLIPackageStats(stats),
		TotalCount: &count,
	})
}

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List individual findings",
	Args:  cobra.NoArgs,
	RunE:  runFindings,
}

func init() {
	findingsCmd.Flags().StringVar(&flagKind, "kind", "", "filter by statement kind: return|break|continue")
	findingsCmd.Flags().StringVar(&flagVerdict, "verdict", "", "filter by verdict: unclassified|incorrect|plausibly_correct|correct_in_tests")
	findingsCmd.Flags().StringVar(&flagPackage, "package", "", "filter by package name")
	findingsCmd.Flags().IntVar(&flagLimit, "limit", 50, "pagination limit")
	findingsCmd.Flags().IntVar(&flagOffset, "offset", 0, "pagination offset")
}

func runFindings(cmd *cobra.Command, args []string) error {
	if flagVerdict != "" && !store.ValidVerdict(flagVerdict) {
		return outputError("findings", fmt.Errorf("invalid verdict %q", flagVerdict))
	}

	s, err := openStore()
	if err != nil {
		return outputError("findings", err)
	}
	defer s.Close()

	details, total, err := swallow.NewReportBuilder(s).Findings(swallow.FindingFilter{
		Kind:    flagKind,
		Verdict: flagVerdict,
		Package: flagPackage,
		Limit:   flagLimit,
		Offset:  flagOffset,
	})
	if err != nil {
		return outputError("findings", err)
	}

	return outputResult(CLIResult{
		Command:    "findings",
		Results:    toCLIFindings(details),
		TotalCount: &total,
	})
}
