package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/sift/internal/analyzer"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Score text for affective signal and print the assessment",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return printJSON(analyzer.Classify(strings.Join(args, " ")))
	},
}
