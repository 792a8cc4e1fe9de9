package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

var (
	// list command flags
	listFlagged bool
	listType    string
)

func init() {
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(namesCmd)

	listCmd.Flags().BoolVar(&listFlagged, "flagged", false, "only show flagged counterparties")
	listCmd.Flags().StringVar(&listType, "type", "", "only show counterparties with this entity type")
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Resolve a raw counterparty name",
	Long: `Resolve a raw counterparty name against the entity bank using exact,
alias, then substring matching. A miss is reported, not an error.

Examples:
  # Transaction descriptions resolve despite reference numbers
  cpd lookup "ACME Corp payment ref 987654321098"

  # Machine-readable output
  cpd lookup "Shady Corp" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known counterparties",
	Long: `List the merged project and global view, flagged records first.
Records present in both tiers show the project version.

Examples:
  cpd list
  cpd list --flagged
  cpd list --type gambling --json`,
	RunE: runList,
}

var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "Print all flagged names and aliases",
	Long: `Print the normalized names and aliases of every flagged counterparty,
one per line. This is the blocklist view the report stage consumes.

Examples:
  cpd names
  cpd names --global-file ~/.config/counterpartyd/global.json`,
	RunE: runNames,
}

func runLookup(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	match, err := svc.Lookup(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to look up counterparty: %w", err)
	}

	if outputJSONF {
		if match == nil {
			return outputJSON(map[string]bool{"found": false})
		}
		return outputJSON(match)
	}

	if match == nil {
		fmt.Printf("No match for %q\n", args[0])
		return nil
	}

	fmt.Printf("Matched via %s match in the %s tier\n\n", match.Stage, match.Tier)
	printRecord(match.Record)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	entries, err := svc.List(context.Background(), entitybank.ListFilter{
		FlaggedOnly: listFlagged,
		EntityType:  listType,
	})
	if err != nil {
		return fmt.Errorf("failed to list counterparties: %w", err)
	}

	if outputJSONF {
		return outputJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No counterparties found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tFLAGGED\tSEEN\tTOTAL\tSOURCE\tTIER")
	for _, e := range entries {
		flaggedStr := ""
		if e.Flagged {
			flaggedStr = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
			truncate(e.Name, 40),
			truncate(e.EntityType, 12),
			flaggedStr,
			e.TimesSeen,
			e.TotalAmount,
			e.Source,
			e.Tier,
		)
	}
	w.Flush()

	return nil
}

func runNames(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	set, err := svc.FlaggedNames(context.Background())
	if err != nil {
		return fmt.Errorf("failed to collect flagged names: %w", err)
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	if outputJSONF {
		return outputJSON(names)
	}

	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
