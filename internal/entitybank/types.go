package entitybank

import (
	"errors"
	"math"
	"time"
)

// Common errors for entity bank operations.
var (
	ErrEmptyProjectPath = errors.New("project tier path cannot be empty")
	ErrNilStore         = errors.New("store cannot be nil")
	ErrServiceClosed    = errors.New("service is closed")
	ErrUnknownTier      = errors.New("unknown tier")
)

// TimestampLayout is the layout of created_at/updated_at on the wire.
// Local time, second precision, matching what the tier documents carry.
const TimestampLayout = "2006-01-02 15:04:05"

// Source records how an entity entered the store.
type Source string

const (
	// SourceUser marks records created by an explicit analyst action.
	SourceUser Source = "user"

	// SourceAuto marks records created from pipeline observations.
	SourceAuto Source = "auto"

	// SourceGlobal marks records created by cross-project propagation.
	SourceGlobal Source = "global"
)

// Tier identifies one of the two persistence tiers.
type Tier string

const (
	// TierProject is the project-local tier. It always exists and takes
	// precedence over the global tier on every read path.
	TierProject Tier = "project"

	// TierGlobal is the optional shared tier, typically a file visible to
	// several analysis projects. Absent when no global path is configured.
	TierGlobal Tier = "global"
)

// MatchStage reports which resolution stage produced a lookup hit.
type MatchStage string

const (
	// StageExact means the query key equalled a stored key.
	StageExact MatchStage = "exact"

	// StageAlias means the query key equalled a normalized alias.
	StageAlias MatchStage = "alias"

	// StageSubstring means the query key and a stored key contained each
	// other in either direction.
	StageSubstring MatchStage = "substring"
)

// Record is one known counterparty in a tier.
//
// The canonical key (Name) is derived by normalize.Key and never changes
// after creation. Analyst fields (Flagged, EntityType, Notes) and observed
// statistics (TimesSeen, TotalAmount, FirstSeen, LastSeen) accumulate on
// the same record; AutoCategory keeps the first non-empty classifier label
// and is never overwritten afterwards.
type Record struct {
	// Name is the canonical key, unique within its tier.
	Name string `json:"name"`

	// DisplayName preserves the original casing of the first-seen raw name.
	DisplayName string `json:"display_name"`

	// EntityType is an open-set label such as "crypto", "gambling",
	// "loans", "risky", "legitimate" or "unknown".
	EntityType string `json:"entity_type"`

	// Flagged marks the counterparty as suspicious.
	Flagged bool `json:"flagged"`

	// Notes carries free-text analyst notes. Notes never propagate to the
	// global tier.
	Notes string `json:"notes"`

	// Aliases are alternate raw names that resolve to this record.
	Aliases []string `json:"aliases"`

	// AutoCategory is the classifier-assigned category. First non-empty
	// value wins; later observations never overwrite it.
	AutoCategory string `json:"auto_category"`

	// Confidence is reserved for future scoring (0.0 to 1.0). Persisted
	// and defaulted, never interpreted.
	Confidence float64 `json:"confidence"`

	// FirstSeen and LastSeen bound the observed transaction dates as
	// ISO-8601 strings. Compared lexicographically, which is only correct
	// for zero-padded dates; non-ISO inputs silently mis-order.
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`

	// TimesSeen counts applied observations. Monotonically non-decreasing.
	TimesSeen int `json:"times_seen"`

	// TotalAmount accumulates absolute transaction amounts.
	TotalAmount float64 `json:"total_amount"`

	// CreatedAt and UpdatedAt are local timestamps in TimestampLayout.
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	// Source records provenance: user, auto or global.
	Source Source `json:"source"`
}

// newRecord creates a record for a canonical key with defaults applied.
func newRecord(key, display string, source Source) *Record {
	now := nowStamp()
	return &Record{
		Name:        key,
		DisplayName: display,
		Aliases:     []string{},
		Source:      source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Observe folds one observation into the record: increments TimesSeen,
// accumulates the absolute amount, extends the seen-date range, and takes
// the category only when none is set yet.
//
// An empty date never moves the range; empty existing bounds are taken
// over by the incoming date.
func (r *Record) Observe(category string, amount float64, date string) {
	r.TimesSeen++
	r.TotalAmount += math.Abs(amount)

	if date != "" {
		if r.FirstSeen == "" || date < r.FirstSeen {
			r.FirstSeen = date
		}
		if r.LastSeen == "" || date > r.LastSeen {
			r.LastSeen = date
		}
	}

	if r.AutoCategory == "" && category != "" {
		r.AutoCategory = category
	}

	r.UpdatedAt = nowStamp()
}

// Clone returns a deep copy. Service methods hand out clones so callers
// can never mutate shared state behind the lock.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Aliases = make([]string, len(r.Aliases))
	copy(out.Aliases, r.Aliases)
	return &out
}

// Observation is one aggregated pipeline sighting of a counterparty.
type Observation struct {
	// Name is the raw counterparty name as extracted.
	Name string `json:"name"`

	// Category is the classifier output for this batch, may be empty.
	Category string `json:"category"`

	// Amount is the transaction amount; the sign is ignored on
	// accumulation.
	Amount float64 `json:"amount"`

	// Date is the ISO-8601 transaction date, may be empty.
	Date string `json:"date"`
}

// FlagRequest carries an analyst flag/unflag upsert.
type FlagRequest struct {
	// Name is the raw counterparty name; the canonical key is derived.
	Name string

	// EntityType overwrites the stored type when non-empty.
	EntityType string

	// Notes overwrite the stored notes when non-empty.
	Notes string

	// Flagged is applied verbatim, so a false value unflags.
	Flagged bool

	// PropagateGlobal mirrors the flag into the global tier when one is
	// configured. Silent no-op otherwise.
	PropagateGlobal bool
}

// Match is a successful lookup resolution.
type Match struct {
	// Record is a copy of the resolved record.
	Record *Record `json:"record"`

	// Tier is the tier the record resolved from.
	Tier Tier `json:"tier"`

	// Stage is the resolution stage that produced the hit.
	Stage MatchStage `json:"stage"`
}

// Entry is one row of the merged two-tier view returned by List.
type Entry struct {
	Record

	// Tier tags which tier the row came from. Keys present in both tiers
	// surface the project record.
	Tier Tier `json:"_source"`
}

// ListFilter narrows the merged view.
type ListFilter struct {
	// FlaggedOnly keeps only flagged records.
	FlaggedOnly bool

	// EntityType keeps only records with this exact type when non-empty.
	EntityType string
}

// Stats summarizes the loaded store, mainly for health reporting.
type Stats struct {
	ProjectRecords int  `json:"project_records"`
	GlobalRecords  int  `json:"global_records"`
	GlobalEnabled  bool `json:"global_enabled"`
}

func nowStamp() string {
	return time.Now().Format(TimestampLayout)
}
