package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

var (
	// flag command flags
	flagType      string
	flagNotes     string
	flagUnflagged bool
	flagGlobal    bool
)

func init() {
	rootCmd.AddCommand(flagCmd)
	rootCmd.AddCommand(unflagCmd)
	rootCmd.AddCommand(aliasCmd)
	rootCmd.AddCommand(deleteCmd)

	flagCmd.Flags().StringVar(&flagType, "type", "", "entity type, e.g. gambling, crypto, loans")
	flagCmd.Flags().StringVar(&flagNotes, "notes", "", "analyst notes (kept in the project tier)")
	flagCmd.Flags().BoolVar(&flagUnflagged, "unflagged", false, "store the record without the flag set")
	flagCmd.Flags().BoolVar(&flagGlobal, "global", false, "mirror the flag into the global tier")
}

var flagCmd = &cobra.Command{
	Use:   "flag <name>",
	Short: "Flag a counterparty",
	Long: `Flag a counterparty in the project tier. The name is normalized to
its canonical form; the raw spelling is kept as the display name.

Examples:
  # Flag with a type and notes
  cpd flag "QuickLoans 24/7" --type loans --notes "predatory rates"

  # Flag and share with every project via the global tier
  cpd flag "Shady Corp" --type crypto --global --global-file ~/.config/counterpartyd/global.json

  # Record a counterparty without flagging it
  cpd flag "Corner Shop" --unflagged`,
	Args: cobra.ExactArgs(1),
	RunE: runFlag,
}

var unflagCmd = &cobra.Command{
	Use:   "unflag <name>",
	Short: "Clear the flag on a counterparty",
	Long: `Clear the flag on a project-tier counterparty. The record and its
notes are kept.

Examples:
  cpd unflag "Shady Corp"`,
	Args: cobra.ExactArgs(1),
	RunE: runUnflag,
}

var aliasCmd = &cobra.Command{
	Use:   "alias <name> <alias>",
	Short: "Attach an alternate name to a counterparty",
	Long: `Attach an alternate raw name to an existing project-tier record.
Lookups resolve the alias to the record it belongs to.

Examples:
  cpd alias "Zabka" "Zabka Z5105 K.1"`,
	Args: cobra.ExactArgs(2),
	RunE: runAlias,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a counterparty record",
	Long: `Delete a counterparty record from the project tier. The global tier
is never touched.

Examples:
  cpd delete "Corner Shop"`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runFlag(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	rec, err := svc.Flag(context.Background(), entitybank.FlagRequest{
		Name:            args[0],
		EntityType:      flagType,
		Notes:           flagNotes,
		Flagged:         !flagUnflagged,
		PropagateGlobal: flagGlobal,
	})
	if err != nil {
		return fmt.Errorf("failed to flag counterparty: %w", err)
	}

	if outputJSONF {
		return outputJSON(rec)
	}

	if rec == nil {
		fmt.Printf("Nothing stored: %q normalizes to empty\n", args[0])
		return nil
	}

	printRecord(rec)
	return nil
}

func runUnflag(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	rec, err := svc.Unflag(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to unflag counterparty: %w", err)
	}

	if outputJSONF {
		return outputJSON(rec)
	}

	if rec == nil {
		fmt.Printf("No record for %q\n", args[0])
		return nil
	}

	fmt.Printf("Unflagged: %s\n", rec.Name)
	return nil
}

func runAlias(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	rec, err := svc.AddAlias(context.Background(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}

	if outputJSONF {
		return outputJSON(rec)
	}

	if rec == nil {
		fmt.Printf("No record for %q\n", args[0])
		return nil
	}

	printRecord(rec)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	deleted, err := svc.Delete(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete counterparty: %w", err)
	}

	if outputJSONF {
		return outputJSON(map[string]bool{"deleted": deleted})
	}

	if deleted {
		fmt.Printf("Deleted: %s\n", args[0])
	} else {
		fmt.Printf("Not found: %s\n", args[0])
	}
	return nil
}
