package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

// registerTools registers all entity tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "entity_lookup",
		Description: "Resolve a raw counterparty name against the entity bank using exact, alias, then substring matching",
	}, s.handleEntityLookup)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "entity_flag",
		Description: "Flag a counterparty with an entity type and notes, optionally mirroring the flag into the global tier",
	}, s.handleEntityFlag)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "entity_unflag",
		Description: "Clear the flag on a counterparty while keeping its record and notes",
	}, s.handleEntityUnflag)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "entity_delete",
		Description: "Delete a counterparty record from the project tier",
	}, s.handleEntityDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "entity_list",
		Description: "List known counterparties from the merged project and global view",
	}, s.handleEntityList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "entity_learn",
		Description: "Apply a batch of transaction observations to accumulate counterparty statistics",
	}, s.handleEntityLearn)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "entity_flagged_names",
		Description: "Return the normalized names and aliases of all flagged counterparties",
	}, s.handleEntityFlaggedNames)
}

// ===== LOOKUP =====

type entityLookupInput struct {
	Name string `json:"name" jsonschema:"required,Raw counterparty name to resolve"`
}

type entityLookupOutput struct {
	Found  bool               `json:"found" jsonschema:"True when a record matched"`
	Record *entitybank.Record `json:"record,omitempty" jsonschema:"Matched record"`
	Tier   string             `json:"tier,omitempty" jsonschema:"Tier the record came from (project or global)"`
	Stage  string             `json:"stage,omitempty" jsonschema:"Match stage (exact, alias, or substring)"`
}

func (s *Server) handleEntityLookup(ctx context.Context, req *mcp.CallToolRequest, args entityLookupInput) (*mcp.CallToolResult, entityLookupOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "entity_lookup")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "entity_lookup")
		s.metrics.RecordInvocation(ctx, "entity_lookup", time.Since(start), toolErr)
	}()

	match, err := s.service.Lookup(ctx, args.Name)
	if err != nil {
		toolErr = err
		return nil, entityLookupOutput{}, err
	}

	if match == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("No match for %q", args.Name)},
			},
		}, entityLookupOutput{Found: false}, nil
	}

	output := entityLookupOutput{
		Found:  true,
		Record: match.Record,
		Tier:   string(match.Tier),
		Stage:  string(match.Stage),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Matched %q via %s match in the %s tier", match.Record.Name, match.Stage, match.Tier)},
		},
	}, output, nil
}

// ===== FLAG =====

type entityFlagInput struct {
	Name            string `json:"name" jsonschema:"required,Raw counterparty name"`
	EntityType      string `json:"entity_type,omitempty" jsonschema:"Entity type such as gambling, crypto, or loans"`
	Notes           string `json:"notes,omitempty" jsonschema:"Analyst notes, kept in the project tier only"`
	Flagged         *bool  `json:"flagged,omitempty" jsonschema:"Flag state to apply (default: true)"`
	PropagateGlobal bool   `json:"propagate_global,omitempty" jsonschema:"Mirror the flag and entity type into the global tier"`
}

type entityFlagOutput struct {
	Record *entitybank.Record `json:"record,omitempty" jsonschema:"Stored record after the update"`
}

func (s *Server) handleEntityFlag(ctx context.Context, req *mcp.CallToolRequest, args entityFlagInput) (*mcp.CallToolResult, entityFlagOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "entity_flag")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "entity_flag")
		s.metrics.RecordInvocation(ctx, "entity_flag", time.Since(start), toolErr)
	}()

	flagged := true
	if args.Flagged != nil {
		flagged = *args.Flagged
	}

	rec, err := s.service.Flag(ctx, entitybank.FlagRequest{
		Name:            args.Name,
		EntityType:      args.EntityType,
		Notes:           args.Notes,
		Flagged:         flagged,
		PropagateGlobal: args.PropagateGlobal,
	})
	if err != nil {
		toolErr = err
		return nil, entityFlagOutput{}, err
	}

	if rec == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Ignored %q: name normalizes to empty", args.Name)},
			},
		}, entityFlagOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Flag stored: %s (flagged=%t)", rec.Name, rec.Flagged)},
		},
	}, entityFlagOutput{Record: rec}, nil
}

// ===== UNFLAG =====

type entityUnflagInput struct {
	Name string `json:"name" jsonschema:"required,Raw counterparty name"`
}

type entityUnflagOutput struct {
	Record *entitybank.Record `json:"record,omitempty" jsonschema:"Stored record after the update"`
}

func (s *Server) handleEntityUnflag(ctx context.Context, req *mcp.CallToolRequest, args entityUnflagInput) (*mcp.CallToolResult, entityUnflagOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "entity_unflag")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "entity_unflag")
		s.metrics.RecordInvocation(ctx, "entity_unflag", time.Since(start), toolErr)
	}()

	rec, err := s.service.Unflag(ctx, args.Name)
	if err != nil {
		toolErr = err
		return nil, entityUnflagOutput{}, err
	}

	if rec == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("No record for %q", args.Name)},
			},
		}, entityUnflagOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Unflagged: %s", rec.Name)},
		},
	}, entityUnflagOutput{Record: rec}, nil
}

// ===== DELETE =====

type entityDeleteInput struct {
	Name string `json:"name" jsonschema:"required,Raw counterparty name"`
}

type entityDeleteOutput struct {
	Deleted bool `json:"deleted" jsonschema:"True when a record was removed"`
}

func (s *Server) handleEntityDelete(ctx context.Context, req *mcp.CallToolRequest, args entityDeleteInput) (*mcp.CallToolResult, entityDeleteOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "entity_delete")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "entity_delete")
		s.metrics.RecordInvocation(ctx, "entity_delete", time.Since(start), toolErr)
	}()

	deleted, err := s.service.Delete(ctx, args.Name)
	if err != nil {
		toolErr = err
		return nil, entityDeleteOutput{}, err
	}

	text := fmt.Sprintf("Not found: %s", args.Name)
	if deleted {
		text = fmt.Sprintf("Deleted: %s", args.Name)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, entityDeleteOutput{Deleted: deleted}, nil
}

// ===== LIST =====

type entityListInput struct {
	FlaggedOnly bool   `json:"flagged_only,omitempty" jsonschema:"Only return flagged records"`
	EntityType  string `json:"entity_type,omitempty" jsonschema:"Only return records with this entity type"`
}

type entityListOutput struct {
	Entities []entitybank.Entry `json:"entities" jsonschema:"Merged project and global records"`
	Count    int                `json:"count" jsonschema:"Number of records returned"`
}

func (s *Server) handleEntityList(ctx context.Context, req *mcp.CallToolRequest, args entityListInput) (*mcp.CallToolResult, entityListOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "entity_list")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "entity_list")
		s.metrics.RecordInvocation(ctx, "entity_list", time.Since(start), toolErr)
	}()

	entries, err := s.service.List(ctx, entitybank.ListFilter{
		FlaggedOnly: args.FlaggedOnly,
		EntityType:  args.EntityType,
	})
	if err != nil {
		toolErr = err
		return nil, entityListOutput{}, err
	}

	output := entityListOutput{
		Entities: entries,
		Count:    len(entries),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d counterparties", output.Count)},
		},
	}, output, nil
}

// ===== LEARN =====

type entityLearnInput struct {
	Observations []entitybank.Observation `json:"observations" jsonschema:"required,Transaction observations to apply"`
}

type entityLearnOutput struct {
	Applied int `json:"applied" jsonschema:"Number of observations applied"`
}

func (s *Server) handleEntityLearn(ctx context.Context, req *mcp.CallToolRequest, args entityLearnInput) (*mcp.CallToolResult, entityLearnOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "entity_learn")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "entity_learn")
		s.metrics.RecordInvocation(ctx, "entity_learn", time.Since(start), toolErr)
	}()

	applied, err := s.service.LearnFromObservations(ctx, args.Observations)
	if err != nil {
		toolErr = err
		return nil, entityLearnOutput{}, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Applied %d of %d observations", applied, len(args.Observations))},
		},
	}, entityLearnOutput{Applied: applied}, nil
}

// ===== FLAGGED NAMES =====

type entityFlaggedNamesInput struct{}

type entityFlaggedNamesOutput struct {
	Names []string `json:"names" jsonschema:"Sorted normalized names and aliases of flagged counterparties"`
	Count int      `json:"count" jsonschema:"Number of names returned"`
}

func (s *Server) handleEntityFlaggedNames(ctx context.Context, req *mcp.CallToolRequest, args entityFlaggedNamesInput) (*mcp.CallToolResult, entityFlaggedNamesOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "entity_flagged_names")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "entity_flagged_names")
		s.metrics.RecordInvocation(ctx, "entity_flagged_names", time.Since(start), toolErr)
	}()

	set, err := s.service.FlaggedNames(ctx)
	if err != nil {
		toolErr = err
		return nil, entityFlaggedNamesOutput{}, err
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	output := entityFlaggedNamesOutput{
		Names: names,
		Count: len(names),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d flagged names", output.Count)},
		},
	}, output, nil
}
