package entitybank

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/fyrsmithlabs/counterpartyd/internal/normalize"
)

// tierOrder fixes resolution precedence: the project tier resolves before
// the global tier at every stage.
var tierOrder = [...]Tier{TierProject, TierGlobal}

// matcher performs staged name resolution over the store's tiers:
// exact key, then normalized alias, then bidirectional substring.
//
// Every stage scans both tiers in tierOrder before the next stage runs,
// so an exact global hit beats an alias-only project hit. Resolution is
// O(records) per tier; a TTL memo keyed by canonical query key absorbs
// the repeated lookups a classification batch produces. The memo is
// flushed on every mutation and reload, so a hit can never outlive the
// state that produced it.
type matcher struct {
	store *Store
	memo  *gocache.Cache
}

func newMatcher(store *Store, memoTTL time.Duration) *matcher {
	m := &matcher{store: store}
	if memoTTL > 0 {
		m.memo = gocache.New(memoTTL, 2*memoTTL)
	}
	return m
}

// lookup resolves a canonical query key. Returns nil on no match. The
// caller holds the service read lock; returned records are live store
// pointers the caller must clone before handing out.
func (m *matcher) lookup(key string) *Match {
	if key == "" {
		return nil
	}

	if m.memo != nil {
		if cached, found := m.memo.Get(key); found {
			LookupsTotal.WithLabelValues("cache").Inc()
			match, _ := cached.(*Match)
			return match
		}
	}

	match := m.resolve(key)
	if m.memo != nil {
		// Negative results are memoized too; unknown merchants dominate
		// classification batches.
		m.memo.Set(key, match, gocache.DefaultExpiration)
	}

	if match != nil {
		LookupsTotal.WithLabelValues(string(match.Stage)).Inc()
	} else {
		LookupsTotal.WithLabelValues("miss").Inc()
	}
	return match
}

func (m *matcher) resolve(key string) *Match {
	for _, tier := range tierOrder {
		if rec, ok := m.records(tier)[key]; ok {
			return &Match{Record: rec, Tier: tier, Stage: StageExact}
		}
	}

	for _, tier := range tierOrder {
		if rec := matchAlias(m.records(tier), key); rec != nil {
			return &Match{Record: rec, Tier: tier, Stage: StageAlias}
		}
	}

	for _, tier := range tierOrder {
		if rec := matchSubstring(m.records(tier), key); rec != nil {
			return &Match{Record: rec, Tier: tier, Stage: StageSubstring}
		}
	}

	return nil
}

// flush drops every memoized resolution. Called inside the exclusive
// section of each mutation and reload.
func (m *matcher) flush() {
	if m.memo != nil {
		m.memo.Flush()
	}
}

func (m *matcher) records(tier Tier) map[string]*Record {
	if tier == TierGlobal {
		return m.store.global
	}
	return m.store.project
}

// matchAlias finds the record whose normalized alias equals the query
// key. When several records claim the alias the deterministic winner is
// picked, since map iteration order would make the result flap.
func matchAlias(records map[string]*Record, key string) *Record {
	winner := ""
	for stored, rec := range records {
		for _, alias := range rec.Aliases {
			if normalize.Key(alias) == key {
				winner = betterKey(winner, stored)
				break
			}
		}
	}
	if winner == "" {
		return nil
	}
	return records[winner]
}

// matchSubstring finds the record whose key contains the query key or is
// contained by it. Longest stored key wins; ties break lexicographically.
func matchSubstring(records map[string]*Record, key string) *Record {
	winner := ""
	for stored := range records {
		if strings.Contains(key, stored) || strings.Contains(stored, key) {
			winner = betterKey(winner, stored)
		}
	}
	if winner == "" {
		return nil
	}
	return records[winner]
}

// betterKey keeps the longer candidate, breaking length ties by taking
// the lexicographically smaller key.
func betterKey(current, candidate string) string {
	if current == "" {
		return candidate
	}
	if len(candidate) > len(current) {
		return candidate
	}
	if len(candidate) == len(current) && candidate < current {
		return candidate
	}
	return current
}
