// Package features assembles the named attribute vector for one query from
// reference data, the planning-area lookup, the clock and the listing.
package features

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/resale-estimator/internal/geo"
	"github.com/sells-group/resale-estimator/internal/proximity"
	"github.com/sells-group/resale-estimator/internal/refdata"
	"github.com/sells-group/resale-estimator/internal/region"
)

// EpochYear is subtracted from the current year to produce sold_year.
const EpochYear = 2016

// Derived attribute names.
const (
	AttrSoldYear  = "sold_year"
	AttrSoldMonth = "sold_month"
	AttrTown      = "town"
)

// Plan fixes which attributes an Assembler emits.
type Plan struct {
	Proximity []proximity.Spec
	SoldMonth bool
}

// Names lists every attribute the plan produces, in vector order.
func (p Plan) Names() []string {
	names := []string{AttrStoreyRange, AttrFloorArea, AttrRemainingLease, AttrSoldYear}
	if p.SoldMonth {
		names = append(names, AttrSoldMonth)
	}
	for _, s := range p.Proximity {
		names = append(names, s.Names()...)
		if s.NearestName != "" {
			names = append(names, s.NearestName)
		}
	}
	return append(names, AttrTown)
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the time source for temporal attributes.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler builds feature vectors against a loaded reference store.
type Assembler struct {
	store   *refdata.Store
	locator *region.Locator
	plan    Plan
	now     func() time.Time
}

// NewAssembler returns an Assembler for plan over store.
func NewAssembler(store *refdata.Store, plan Plan, opts ...Option) *Assembler {
	a := &Assembler{
		store:   store,
		locator: region.NewLocator(store.Regions()),
		plan:    plan,
		now:     time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Plan returns the assembler's plan.
func (a *Assembler) Plan() Plan { return a.plan }

// Assemble computes the vector for q and listing. Proximity specs run concurrently;
// results are merged in plan order.
func (a *Assembler) Assemble(ctx context.Context, q geo.Coordinate, listing Listing) (*Vector, error) {
	if err := listing.Validate(); err != nil {
		return nil, err
	}

	partials := make([]proximity.Partial, len(a.plan.Proximity))
	var town string

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range a.plan.Proximity {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "features: assemble")
			}
			p, err := proximity.Aggregate(q, a.store.Entries(spec.Kind), spec)
			if err != nil {
				return err
			}
			partials[i] = p
			return nil
		})
	}
	g.Go(func() error {
		name, err := a.locator.Locate(q)
		if err != nil {
			return err
		}
		town = name
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := a.now()
	v := NewVector()
	v.SetNumber(AttrStoreyRange, float64(listing.StoreyRange))
	v.SetNumber(AttrFloorArea, float64(listing.FloorArea))
	v.SetNumber(AttrRemainingLease, float64(listing.RemainingLease))
	v.SetNumber(AttrSoldYear, float64(now.Year()-EpochYear))
	if a.plan.SoldMonth {
		v.SetNumber(AttrSoldMonth, float64(now.Month()))
	}
	for i, p := range partials {
		for _, f := range p.Features {
			v.SetNumber(f.Name, f.Value)
		}
		if name := a.plan.Proximity[i].NearestName; name != "" {
			v.SetLabel(name, p.Nearest)
		}
	}
	v.SetLabel(AttrTown, town)

	zap.L().Debug("features: assembled",
		zap.String("point", q.String()),
		zap.String("town", town),
		zap.Int("attributes", v.Len()),
	)
	return v, nil
}
