// Package main implements the cpd CLI for manual operations against the
// counterparty entity bank.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/counterpartyd/internal/config"
	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
	"github.com/fyrsmithlabs/counterpartyd/internal/logging"
)

var (
	// store location flags, shared by every command
	storeDir    string
	projectFile string
	globalFile  string
	outputJSONF bool

	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cpd",
	Short: "CLI for the counterparty entity bank",
	Long: `cpd is a command-line interface for inspecting and editing the
counterparty entity bank used by the transaction-analysis pipeline.

It operates directly on the JSON tier files, so no daemon is needed.
Point it at a project directory with --dir and, optionally, at the
shared global tier with --global-file.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDir, "dir", ".", "project directory containing the entity file")
	rootCmd.PersistentFlags().StringVar(&projectFile, "project-file", "entities.json", "project tier file name, or an absolute path")
	rootCmd.PersistentFlags().StringVar(&globalFile, "global-file", "", "global tier file path (empty disables the global tier)")
	rootCmd.PersistentFlags().BoolVar(&outputJSONF, "json", false, "output results as JSON")
}

// openService builds an entity bank service over the configured tier
// files. Store warnings (for example a corrupt tier file) go to stderr.
func openService() (*entitybank.Service, error) {
	logger, err := logging.New(logging.Config{
		Level:  "warn",
		Format: "console",
		Stderr: true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	storeCfg := config.StoreConfig{
		Dir:         storeDir,
		ProjectFile: projectFile,
		GlobalFile:  globalFile,
	}

	store, err := entitybank.Open(storeCfg.ProjectPath(), storeCfg.GlobalFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity store: %w", err)
	}

	svc, err := entitybank.NewService(entitybank.Config{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create entity service: %w", err)
	}

	return svc, nil
}

// printRecord writes a human-readable record summary.
func printRecord(rec *entitybank.Record) {
	fmt.Printf("Name: %s\n", rec.Name)
	fmt.Printf("Display: %s\n", rec.DisplayName)
	if rec.EntityType != "" {
		fmt.Printf("Type: %s\n", rec.EntityType)
	}
	fmt.Printf("Flagged: %t\n", rec.Flagged)
	fmt.Printf("Source: %s\n", rec.Source)
	if rec.Notes != "" {
		fmt.Printf("Notes: %s\n", rec.Notes)
	}
	if len(rec.Aliases) > 0 {
		fmt.Printf("Aliases: %v\n", rec.Aliases)
	}
	if rec.AutoCategory != "" {
		fmt.Printf("Category: %s\n", rec.AutoCategory)
	}
	if rec.TimesSeen > 0 {
		fmt.Printf("Seen: %d times, total %.2f\n", rec.TimesSeen, rec.TotalAmount)
	}
	if rec.FirstSeen != "" || rec.LastSeen != "" {
		fmt.Printf("Date range: %s .. %s\n", rec.FirstSeen, rec.LastSeen)
	}
	fmt.Printf("Updated: %s\n", rec.UpdatedAt)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
