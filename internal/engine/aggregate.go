package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// ledgerView is one read of an owner's ledger.
type ledgerView struct {
	activities []types.Activity
	studies    []types.BookStudy
	roster     []types.Contact
}

// readLedger loads the owner's activities, book studies, and roster
// concurrently. A view that cannot be read is left empty, logged, and
// counted under its name, so closure still produces a snapshot with the
// affected figures zeroed. Only an unreachable ledger is an error.
func (s *Service) readLedger(ctx context.Context, ownerID string) (*ledgerView, error) {
	ledger, err := s.store.Ledger()
	if err != nil {
		return nil, err
	}

	var v ledgerView
	var g errgroup.Group
	g.Go(func() error {
		v.activities = readView(ctx, s, "ledger_activities", func() ([]types.Activity, error) {
			return ledger.Activities(ctx, ownerID)
		})
		return nil
	})
	g.Go(func() error {
		v.studies = readView(ctx, s, "ledger_book_studies", func() ([]types.BookStudy, error) {
			return ledger.BookStudies(ctx, ownerID)
		})
		return nil
	})
	g.Go(func() error {
		v.roster = readView(ctx, s, "ledger_roster", func() ([]types.Contact, error) {
			return ledger.Roster(ctx, ownerID)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return &v, nil
}

// readView is lenient for one ledger view.
func readView[T any](ctx context.Context, s *Service, field string, read func() ([]T, error)) []T {
	rows, err := read()
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("ledger view unreadable, treated as empty", "field", field, "error", err)
			s.metrics.AggregateFieldErrorsTotal.WithLabelValues(field).Inc()
		}
		return nil
	}
	return rows
}

// cycleAggregate holds the ledger-derived figures for one cycle.
type cycleAggregate struct {
	System   types.SystemTotals
	New      types.ActivityCounts
	NewBooks types.BookTotals
	Books    []types.BookStudyDetail
}

// lenient runs compute for one aggregate field. A returned error or a panic
// zeroes the field, is logged, and is counted; it never fails the caller.
func lenient[T any](s *Service, field string, compute func() (T, error)) T {
	v, err := guard(compute)
	if err != nil {
		var zero T
		s.logger.Warn("aggregate field zeroed", "field", field, "error", err)
		s.metrics.AggregateFieldErrorsTotal.WithLabelValues(field).Inc()
		return zero
	}
	return v
}

func guard[T any](compute func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("%w: panic: %v", types.ErrComputation, r)
		}
	}()
	v, err = compute()
	if err != nil {
		return v, fmt.Errorf("%w: %w", types.ErrComputation, err)
	}
	return v, nil
}

// aggregate derives system totals and per-cycle counts for cycle n of plan.
// Lifetime totals cover every ledger record of the owner; the new counts
// and new books only records attributed to this plan and cycle. Ages are
// taken on ref.
func (s *Service) aggregate(v *ledgerView, plan *types.CyclePlan, n int, period types.Period, ref time.Time) *cycleAggregate {
	var agg cycleAggregate

	for _, c := range types.Categories {
		key := c.Key()
		total := lenient(s, "system_"+key, func() (int, error) {
			return v.countCategory(c, nil)
		})
		fresh := lenient(s, "new_"+key, func() (int, error) {
			return v.countCategory(c, func(cycle *int, planID string) bool {
				return cycle != nil && *cycle == n && belongsTo(planID, plan)
			})
		})
		// Both counters accept every category in the closed set.
		_ = agg.System.Activities.Add(c, total)
		_ = agg.New.Add(c, fresh)
	}

	agg.System.Participants = make(types.Participants, len(types.GroupCategories))
	for _, c := range types.GroupCategories {
		key := c.Key()
		total := lenient(s, "system_participants_"+key, func() (int, error) {
			return v.sumParticipants(c, func(a types.Activity) int { return a.Participants })
		})
		qualifying := lenient(s, "system_qualifying_"+key, func() (int, error) {
			return v.sumParticipants(c, func(a types.Activity) int { return a.Qualifying })
		})
		agg.System.Participants[c] = types.Participation{Total: total, Qualifying: qualifying}
	}

	agg.System.Demographics = lenient(s, "demographics", func() (types.Demographics, error) {
		return v.demographics(ref)
	})
	agg.System.Books = lenient(s, "system_books", func() (types.BookTotals, error) {
		return v.bookTotals(), nil
	})
	agg.NewBooks = lenient(s, "new_books", func() (types.BookTotals, error) {
		return v.newBooks(plan, n, period), nil
	})
	agg.Books = lenient(s, "book_breakdown", func() ([]types.BookStudyDetail, error) {
		return v.breakdown()
	})
	return &agg
}

// belongsTo reports whether a record tagged with planID is attributed to
// plan. Untagged records belong to the owner's primary plan.
func belongsTo(planID string, plan *types.CyclePlan) bool {
	if planID == "" {
		return plan.IsPrimary
	}
	return planID == plan.PlanID
}

// countCategory counts records of category c that pass keep (all when keep
// is nil). Book studies count toward CategoryBookStudy.
func (v *ledgerView) countCategory(c types.Category, keep func(cycle *int, planID string) bool) (int, error) {
	count := 0
	for _, a := range v.activities {
		cat, err := types.ParseCategory(string(a.Category))
		if err != nil {
			return 0, fmt.Errorf("activity %s: %w", a.ActivityID, err)
		}
		if cat == c && (keep == nil || keep(a.CreationCycle, a.PlanID)) {
			count++
		}
	}
	if c == types.CategoryBookStudy {
		for _, b := range v.studies {
			if keep == nil || keep(b.CreationCycle, b.PlanID) {
				count++
			}
		}
	}
	return count, nil
}

func (v *ledgerView) sumParticipants(c types.Category, pick func(types.Activity) int) (int, error) {
	sum := 0
	for _, a := range v.activities {
		if a.Category != c {
			continue
		}
		if a.Qualifying > a.Participants {
			return 0, fmt.Errorf("activity %s: %d qualifying of %d participants", a.ActivityID, a.Qualifying, a.Participants)
		}
		sum += pick(a)
	}
	return sum, nil
}

// demographics buckets the roster by age on ref. Contacts without a birth
// date are not counted.
func (v *ledgerView) demographics(ref time.Time) (types.Demographics, error) {
	var d types.Demographics
	for _, c := range v.roster {
		if c.BirthDate == nil {
			continue
		}
		age := types.AgeAt(*c.BirthDate, ref)
		if age < 0 {
			return types.Demographics{}, fmt.Errorf("contact %s born after %s", c.ContactID, ref.Format(time.DateOnly))
		}
		d.Count(age)
	}
	return d, nil
}

// bookTotals counts every study of the owner and those completed.
func (v *ledgerView) bookTotals() types.BookTotals {
	var t types.BookTotals
	for _, b := range v.studies {
		t.Started++
		if b.CompletedAt != nil {
			t.Completed++
		}
	}
	return t
}

// newBooks counts the plan's studies started in cycle n (by tag, or by
// start date when untagged) and those completed within period.
func (v *ledgerView) newBooks(plan *types.CyclePlan, n int, period types.Period) types.BookTotals {
	var t types.BookTotals
	for _, b := range v.studies {
		if !belongsTo(b.PlanID, plan) {
			continue
		}
		if b.CreationCycle != nil {
			if *b.CreationCycle == n {
				t.Started++
			}
		} else if within(b.StartedAt, period) {
			t.Started++
		}
		if b.CompletedAt != nil && within(*b.CompletedAt, period) {
			t.Completed++
		}
	}
	return t
}

// breakdown groups the owner's book studies by category and book name.
func (v *ledgerView) breakdown() ([]types.BookStudyDetail, error) {
	type key struct {
		cat  types.BookCategory
		name string
	}
	idx := make(map[key]int)
	var out []types.BookStudyDetail
	for _, b := range v.studies {
		cat, err := types.ParseBookCategory(string(b.Category))
		if err != nil {
			return nil, fmt.Errorf("book study %s: %w", b.StudyID, err)
		}
		k := key{cat, b.BookName}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, types.BookStudyDetail{Category: cat, BookName: b.BookName})
		}
		out[i].Started++
		if b.CompletedAt != nil {
			out[i].Completed++
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].BookName < out[j].BookName
	})
	return out, nil
}

// within reports whether the date of t falls in the inclusive period.
func within(t time.Time, p types.Period) bool {
	d := types.DateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}
