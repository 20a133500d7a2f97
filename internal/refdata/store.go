package refdata

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultEliteTopRows is the number of leading school rows treated as elite.
// The shipped school tables are ordered by popularity and the models were
// trained with this rule, so it is applied verbatim.
const DefaultEliteTopRows = 20

// LoadOptions controls how a Store is built from a Source.
type LoadOptions struct {
	// EliteTopRows marks the first N rows of each school dataset as elite
	// in addition to any elite column. 0 disables the rule.
	EliteTopRows int

	// Kinds restricts which point datasets are loaded. Nil loads AllKinds.
	Kinds []Kind
}

// Store holds the reference datasets. It is read-only after Load and safe
// for concurrent use without locking.
type Store struct {
	entries map[Kind][]Entry
	regions []Region
}

// NewStore builds a Store from in-memory data. Slices are not copied.
func NewStore(entries map[Kind][]Entry, regions []Region) *Store {
	if entries == nil {
		entries = map[Kind][]Entry{}
	}
	return &Store{entries: entries, regions: regions}
}

// Load reads every requested dataset from src once and applies load-time conventions.
func Load(ctx context.Context, src Source, opts LoadOptions) (*Store, error) {
	log := zap.L().With(zap.String("component", "refdata.load"))

	kinds := opts.Kinds
	if kinds == nil {
		kinds = AllKinds
	}

	entries := make(map[Kind][]Entry, len(kinds))
	for _, kind := range kinds {
		rows, err := src.Entries(ctx, kind)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: load %s", kind)
		}
		if kind == KindPrimary || kind == KindSecondary {
			markElite(rows, opts.EliteTopRows)
		}
		entries[kind] = rows
		log.Debug("dataset loaded", zap.String("kind", string(kind)), zap.Int("rows", len(rows)))
	}

	regions, err := src.Regions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: load regions")
	}
	log.Info("reference data loaded",
		zap.Int("kinds", len(entries)),
		zap.Int("regions", len(regions)),
	)

	return &Store{entries: entries, regions: regions}, nil
}

// markElite flags the first n rows as elite.
func markElite(rows []Entry, n int) {
	for i := 0; i < n && i < len(rows); i++ {
		rows[i].Elite = true
	}
}

// Entries returns the rows for kind in dataset order. Callers must not modify them.
func (s *Store) Entries(kind Kind) []Entry {
	return s.entries[kind]
}

// Regions returns the planning-area polygons in dataset order.
func (s *Store) Regions() []Region {
	return s.regions
}

// Counts returns the row count per loaded kind.
func (s *Store) Counts() map[Kind]int {
	out := make(map[Kind]int, len(s.entries))
	for k, rows := range s.entries {
		out[k] = len(rows)
	}
	return out
}
