package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

func newToolServer(t *testing.T) *Server {
	t.Helper()

	server, err := NewServer(nil, newTestService(t))
	require.NoError(t, err)
	return server
}

func TestEntityFlagTool(t *testing.T) {
	s := newToolServer(t)
	ctx := context.Background()

	result, out, err := s.handleEntityFlag(ctx, nil, entityFlagInput{
		Name:       "  Shady Corp  ",
		EntityType: "crypto",
		Notes:      "chargeback pattern",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, out.Record)
	assert.Equal(t, "shady corp", out.Record.Name)
	assert.Equal(t, "Shady Corp", out.Record.DisplayName)
	assert.True(t, out.Record.Flagged)
	assert.Equal(t, entitybank.SourceUser, out.Record.Source)

	t.Run("explicit flagged false", func(t *testing.T) {
		flagged := false
		_, out, err := s.handleEntityFlag(ctx, nil, entityFlagInput{
			Name:    "Shady Corp",
			Flagged: &flagged,
		})
		require.NoError(t, err)
		require.NotNil(t, out.Record)
		assert.False(t, out.Record.Flagged)
	})

	t.Run("junk name ignored", func(t *testing.T) {
		_, out, err := s.handleEntityFlag(ctx, nil, entityFlagInput{Name: "12345678901"})
		require.NoError(t, err)
		assert.Nil(t, out.Record)
	})
}

func TestEntityLookupTool(t *testing.T) {
	s := newToolServer(t)
	ctx := context.Background()

	_, _, err := s.handleEntityFlag(ctx, nil, entityFlagInput{Name: "Acme Corporation"})
	require.NoError(t, err)

	t.Run("exact match", func(t *testing.T) {
		_, out, err := s.handleEntityLookup(ctx, nil, entityLookupInput{Name: "ACME Corporation"})
		require.NoError(t, err)
		require.True(t, out.Found)
		require.NotNil(t, out.Record)
		assert.Equal(t, "acme corporation", out.Record.Name)
		assert.Equal(t, string(entitybank.TierProject), out.Tier)
		assert.Equal(t, string(entitybank.StageExact), out.Stage)
	})

	t.Run("substring match", func(t *testing.T) {
		_, out, err := s.handleEntityLookup(ctx, nil, entityLookupInput{Name: "Acme Corporation invoice 987654321098"})
		require.NoError(t, err)
		require.True(t, out.Found)
		assert.Equal(t, string(entitybank.StageSubstring), out.Stage)
	})

	t.Run("miss", func(t *testing.T) {
		result, out, err := s.handleEntityLookup(ctx, nil, entityLookupInput{Name: "globex"})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, out.Found)
		assert.Nil(t, out.Record)
	})
}

func TestEntityUnflagTool(t *testing.T) {
	s := newToolServer(t)
	ctx := context.Background()

	_, _, err := s.handleEntityFlag(ctx, nil, entityFlagInput{Name: "Shady Corp", Notes: "keep me"})
	require.NoError(t, err)

	_, out, err := s.handleEntityUnflag(ctx, nil, entityUnflagInput{Name: "Shady Corp"})
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	assert.False(t, out.Record.Flagged)
	assert.Equal(t, "keep me", out.Record.Notes)

	t.Run("unknown name", func(t *testing.T) {
		_, out, err := s.handleEntityUnflag(ctx, nil, entityUnflagInput{Name: "globex"})
		require.NoError(t, err)
		assert.Nil(t, out.Record)
	})
}

func TestEntityDeleteTool(t *testing.T) {
	s := newToolServer(t)
	ctx := context.Background()

	_, _, err := s.handleEntityFlag(ctx, nil, entityFlagInput{Name: "Shady Corp"})
	require.NoError(t, err)

	_, out, err := s.handleEntityDelete(ctx, nil, entityDeleteInput{Name: "shady corp"})
	require.NoError(t, err)
	assert.True(t, out.Deleted)

	_, out, err = s.handleEntityDelete(ctx, nil, entityDeleteInput{Name: "shady corp"})
	require.NoError(t, err)
	assert.False(t, out.Deleted)
}

func TestEntityListTool(t *testing.T) {
	s := newToolServer(t)
	ctx := context.Background()

	_, _, err := s.handleEntityFlag(ctx, nil, entityFlagInput{Name: "Bad Actor", EntityType: "risky"})
	require.NoError(t, err)
	_, _, err = s.handleEntityLearn(ctx, nil, entityLearnInput{
		Observations: []entitybank.Observation{
			{Name: "Corner Shop", Amount: 5, Date: "2024-01-01"},
		},
	})
	require.NoError(t, err)

	_, out, err := s.handleEntityList(ctx, nil, entityListInput{})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "bad actor", out.Entities[0].Name)

	t.Run("flagged only", func(t *testing.T) {
		_, out, err := s.handleEntityList(ctx, nil, entityListInput{FlaggedOnly: true})
		require.NoError(t, err)
		require.Equal(t, 1, out.Count)
		assert.Equal(t, "bad actor", out.Entities[0].Name)
	})

	t.Run("entity type filter", func(t *testing.T) {
		_, out, err := s.handleEntityList(ctx, nil, entityListInput{EntityType: "risky"})
		require.NoError(t, err)
		require.Equal(t, 1, out.Count)
	})
}

func TestEntityLearnTool(t *testing.T) {
	s := newToolServer(t)
	ctx := context.Background()

	_, out, err := s.handleEntityLearn(ctx, nil, entityLearnInput{
		Observations: []entitybank.Observation{
			{Name: "Corner Shop", Category: "groceries", Amount: -12.5, Date: "2024-02-01"},
			{Name: "Corner Shop", Amount: 7.5, Date: "2024-02-14"},
			{Name: "ab", Amount: 99},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Applied)

	_, lookup, err := s.handleEntityLookup(ctx, nil, entityLookupInput{Name: "Corner Shop"})
	require.NoError(t, err)
	require.True(t, lookup.Found)
	assert.Equal(t, 2, lookup.Record.TimesSeen)
	assert.InDelta(t, 20.0, lookup.Record.TotalAmount, 0.001)

	t.Run("empty batch", func(t *testing.T) {
		_, out, err := s.handleEntityLearn(ctx, nil, entityLearnInput{})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Applied)
	})
}

func TestEntityFlaggedNamesTool(t *testing.T) {
	s := newToolServer(t)
	ctx := context.Background()

	_, _, err := s.handleEntityFlag(ctx, nil, entityFlagInput{Name: "Scam LLC"})
	require.NoError(t, err)
	_, _, err = s.handleEntityFlag(ctx, nil, entityFlagInput{Name: "Bad Actor"})
	require.NoError(t, err)

	_, out, err := s.handleEntityFlaggedNames(ctx, nil, entityFlaggedNamesInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad actor", "scam llc"}, out.Names)
	assert.Equal(t, 2, out.Count)
}

func TestToolsClosedService(t *testing.T) {
	svc := newTestService(t)
	server, err := NewServer(nil, svc)
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	ctx := context.Background()

	_, _, err = server.handleEntityLookup(ctx, nil, entityLookupInput{Name: "x"})
	assert.ErrorIs(t, err, entitybank.ErrServiceClosed)

	_, _, err = server.handleEntityFlag(ctx, nil, entityFlagInput{Name: "x"})
	assert.ErrorIs(t, err, entitybank.ErrServiceClosed)

	_, _, err = server.handleEntityList(ctx, nil, entityListInput{})
	assert.ErrorIs(t, err, entitybank.ErrServiceClosed)
}
