package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jward/swallow/internal/store"
	"github.com/spf13/cobra"
)

var flagNote string

var classifyCmd = &cobra.Command{
	Use:   "classify <finding-id> <verdict>",
	Short: "Record a manual verdict for a finding",
	Long: "Sets the verdict of a finding after manual review. Verdicts: " +
		strings.Join([]string{store.VerdictIncorrect, store.VerdictPlausiblyCorrect, store.VerdictCorrectInTests, store.VerdictUnclassified}, ", ") + ".",
	Args: cobra.ExactArgs(2),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&flagNote, "note", "", "reviewer note explaining the verdict")
}

func runClassify(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return outputError("classify", fmt.Errorf("invalid finding id %q: must be a positive integer", args[0]))
	}
	verdict := args[1]
	if !store.ValidVerdict(verdict) {
		return outputError("classify", fmt.Errorf("invalid verdict %q", verdict))
	}

	s, err := openStore()
	if err != nil {
		return outputError("classify", err)
	}
	defer s.Close()

	if err := s.SetVerdict(id, verdict, flagNote); err != nil {
		return outputError("classify", err)
	}

	finding, err := s.FindingByID(id)
	if err != nil {
		return outputError("classify", err)
	}

	return outputResult(CLIResult{
		Command: "classify",
		Results: CLIFinding{
			ID:      finding.ID,
			Kind:    finding.Kind,
			Line:    finding.Line,
			Col:     finding.Col,
			Context: finding.Context,
			InTest:  finding.InTest,
			Verdict: finding.Verdict,
			Note:    finding.Note,
		},
	})
}
