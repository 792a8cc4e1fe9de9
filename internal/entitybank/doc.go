// Package entitybank provides persistent counterparty intelligence for
// transaction analysis.
//
// The package stores what is known about counterparties seen in bank
// statements: analyst flags, free-text notes, aliases, and statistics
// accumulated from pipeline observations. Knowledge lives in two tiers
// backed by flat JSON documents: a project tier scoped to one analysis
// case, and an optional global tier shared across projects. The project
// tier wins on every read path.
//
// # Canonical Keys
//
// Records are keyed by normalize.Key, which lowercases, collapses
// whitespace, and strips embedded account/reference numbers (digit runs
// of ten or more). "ACME Corp 12345678901" and "acme corp" address the
// same record.
//
// # Resolution
//
// Lookup resolves raw names in three stages, checking the project tier
// before the global tier at each one:
//  1. exact canonical key
//  2. normalized alias
//  3. bidirectional substring containment (longest stored key wins)
//
// A TTL memo absorbs the repeated lookups of a classification batch and
// is flushed on every mutation, so stale hits cannot occur.
//
// # Mutations
//
// Flag upserts analyst judgments and optionally propagates them to the
// global tier (notes never propagate). LearnFromObservations folds
// classifier batches into per-counterparty statistics: times seen, total
// absolute amount, first/last seen dates, and a sticky auto-category.
// Every mutation persists the affected tier before returning; dirty
// input is absorbed rather than raised.
//
// # Usage
//
//	store, err := entitybank.Open(projectFile, globalFile, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := entitybank.NewService(entitybank.Config{Store: store, Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Analyst flags a suspicious counterparty everywhere.
//	rec, err := svc.Flag(ctx, entitybank.FlagRequest{
//	    Name:            "QuickLoans 24/7",
//	    EntityType:      "loans",
//	    Flagged:         true,
//	    PropagateGlobal: true,
//	})
//
//	// Pipeline records a batch of observations.
//	applied, err := svc.LearnFromObservations(ctx, batch)
//
//	// Classifier checks a raw statement name.
//	match, err := svc.Lookup(ctx, "QUICKLOANS 24/7 ref 00123456789012")
package entitybank
