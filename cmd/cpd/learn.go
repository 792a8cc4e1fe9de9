package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

func init() {
	rootCmd.AddCommand(learnCmd)
}

var learnCmd = &cobra.Command{
	Use:   "learn <file>",
	Short: "Apply an observation batch from a JSON file",
	Long: `Apply a batch of transaction observations to the project tier. The
file holds a JSON array of observations:

  [
    {"name": "Corner Shop", "category": "groceries", "amount": -12.50, "date": "2024-02-01"},
    {"name": "Corner Shop", "amount": 7.50, "date": "2024-02-14"}
  ]

Names that normalize to fewer than three characters are skipped.

Examples:
  # Import from a file produced by the extraction stage
  cpd learn observations.json

  # Import from stdin
  extract-transactions | cpd learn -`,
	Args: cobra.ExactArgs(1),
	RunE: runLearn,
}

func runLearn(cmd *cobra.Command, args []string) error {
	batch, err := readObservations(args[0])
	if err != nil {
		return err
	}

	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	applied, err := svc.LearnFromObservations(context.Background(), batch)
	if err != nil {
		return fmt.Errorf("failed to apply observations: %w", err)
	}

	if outputJSONF {
		return outputJSON(map[string]int{"applied": applied})
	}

	fmt.Printf("Applied %d of %d observations\n", applied, len(batch))
	return nil
}

// readObservations parses an observation batch from a file, or from
// stdin when path is "-".
func readObservations(path string) ([]entitybank.Observation, error) {
	var data []byte
	var err error

	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}

	var batch []entitybank.Observation
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse observations: %w", err)
	}

	return batch, nil
}
