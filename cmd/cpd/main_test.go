package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/counterpartyd/internal/entitybank"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:   "string shorter than max",
			input:  "acme",
			maxLen: 10,
			want:   "acme",
		},
		{
			name:   "string equal to max",
			input:  "acme",
			maxLen: 4,
			want:   "acme",
		},
		{
			name:   "string longer than max",
			input:  "acme corporation",
			maxLen: 8,
			want:   "acme ...",
		},
		{
			name:   "empty string",
			input:  "",
			maxLen: 10,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestReadObservations(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid batch", func(t *testing.T) {
		path := filepath.Join(dir, "batch.json")
		payload := `[
			{"name": "Corner Shop", "category": "groceries", "amount": -12.5, "date": "2024-02-01"},
			{"name": "Corner Shop", "amount": 7.5, "date": "2024-02-14"}
		]`
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			t.Fatal(err)
		}

		batch, err := readObservations(path)
		if err != nil {
			t.Fatalf("readObservations: %v", err)
		}
		if len(batch) != 2 {
			t.Fatalf("got %d observations, want 2", len(batch))
		}
		if batch[0].Name != "Corner Shop" || batch[0].Category != "groceries" {
			t.Errorf("unexpected first observation: %+v", batch[0])
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte(`{"not": "an array"}`), 0o644); err != nil {
			t.Fatal(err)
		}

		if _, err := readObservations(path); err == nil {
			t.Error("expected error for non-array payload")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := readObservations(filepath.Join(dir, "absent.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

// resetStoreFlags points the CLI at a fresh temp store and restores the
// defaults afterwards.
func resetStoreFlags(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	storeDir = dir
	projectFile = "entities.json"
	globalFile = ""
	outputJSONF = false
	flagType = ""
	flagNotes = ""
	flagUnflagged = false
	flagGlobal = false
	listFlagged = false
	listType = ""

	t.Cleanup(func() {
		storeDir = "."
		projectFile = "entities.json"
		globalFile = ""
	})

	return dir
}

// readTier loads a tier file written by the CLI.
func readTier(t *testing.T, path string) map[string]entitybank.Record {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading tier file: %v", err)
	}
	var tier map[string]entitybank.Record
	if err := json.Unmarshal(data, &tier); err != nil {
		t.Fatalf("parsing tier file: %v", err)
	}
	return tier
}

func TestFlagCommandRoundTrip(t *testing.T) {
	dir := resetStoreFlags(t)
	flagType = "crypto"

	if err := runFlag(nil, []string{"  Shady Corp  "}); err != nil {
		t.Fatalf("runFlag: %v", err)
	}

	tier := readTier(t, filepath.Join(dir, "entities.json"))
	rec, ok := tier["shady corp"]
	if !ok {
		t.Fatalf("record missing from tier file: %v", tier)
	}
	if !rec.Flagged || rec.EntityType != "crypto" || rec.DisplayName != "Shady Corp" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if err := runLookup(nil, []string{"SHADY CORP payment 987654321098"}); err != nil {
		t.Fatalf("runLookup: %v", err)
	}

	if err := runUnflag(nil, []string{"Shady Corp"}); err != nil {
		t.Fatalf("runUnflag: %v", err)
	}
	tier = readTier(t, filepath.Join(dir, "entities.json"))
	if tier["shady corp"].Flagged {
		t.Error("record still flagged after unflag")
	}

	if err := runDelete(nil, []string{"Shady Corp"}); err != nil {
		t.Fatalf("runDelete: %v", err)
	}
	tier = readTier(t, filepath.Join(dir, "entities.json"))
	if _, ok := tier["shady corp"]; ok {
		t.Error("record still present after delete")
	}
}

func TestAliasCommand(t *testing.T) {
	dir := resetStoreFlags(t)

	if err := runFlag(nil, []string{"Zabka"}); err != nil {
		t.Fatalf("runFlag: %v", err)
	}
	if err := runAlias(nil, []string{"Zabka", "Zabka Z5105 K.1"}); err != nil {
		t.Fatalf("runAlias: %v", err)
	}

	tier := readTier(t, filepath.Join(dir, "entities.json"))
	rec, ok := tier["zabka"]
	if !ok {
		t.Fatalf("record missing from tier file: %v", tier)
	}
	if len(rec.Aliases) != 1 || rec.Aliases[0] != "Zabka Z5105 K.1" {
		t.Errorf("aliases = %v, want the raw alias spelling", rec.Aliases)
	}

	// Unknown names are reported, not created.
	if err := runAlias(nil, []string{"globex", "globex intl"}); err != nil {
		t.Fatalf("runAlias unknown: %v", err)
	}
	tier = readTier(t, filepath.Join(dir, "entities.json"))
	if _, ok := tier["globex"]; ok {
		t.Error("alias on unknown name should not create a record")
	}
}

func TestLearnCommand(t *testing.T) {
	dir := resetStoreFlags(t)

	batchPath := filepath.Join(dir, "batch.json")
	payload := `[
		{"name": "Corner Shop", "category": "groceries", "amount": -12.5, "date": "2024-02-01"},
		{"name": "Corner Shop", "amount": 7.5, "date": "2024-02-14"},
		{"name": "ab", "amount": 99}
	]`
	if err := os.WriteFile(batchPath, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runLearn(nil, []string{batchPath}); err != nil {
		t.Fatalf("runLearn: %v", err)
	}

	tier := readTier(t, filepath.Join(dir, "entities.json"))
	rec, ok := tier["corner shop"]
	if !ok {
		t.Fatalf("record missing from tier file: %v", tier)
	}
	if rec.TimesSeen != 2 {
		t.Errorf("times_seen = %d, want 2", rec.TimesSeen)
	}
	if rec.AutoCategory != "groceries" {
		t.Errorf("auto_category = %q, want %q", rec.AutoCategory, "groceries")
	}
	if _, ok := tier["ab"]; ok {
		t.Error("short name should have been skipped")
	}
}

func TestListAndNamesCommands(t *testing.T) {
	resetStoreFlags(t)
	flagType = "risky"

	if err := runFlag(nil, []string{"Bad Actor"}); err != nil {
		t.Fatalf("runFlag: %v", err)
	}

	if err := runList(nil, nil); err != nil {
		t.Fatalf("runList: %v", err)
	}

	listFlagged = true
	if err := runList(nil, nil); err != nil {
		t.Fatalf("runList --flagged: %v", err)
	}

	if err := runNames(nil, nil); err != nil {
		t.Fatalf("runNames: %v", err)
	}
}
