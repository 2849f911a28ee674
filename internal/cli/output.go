package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// emit writes v as indented JSON in --json mode, otherwise calls text.
func (a *app) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if a.flags.jsonMode {
		return printJSON(w, v)
	}
	text(w)
	return nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// table writes aligned columns; call flush when done.
func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

// parseDay parses a YYYY-MM-DD flag value.
func parseDay(flag, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, usageError{fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, s)}
	}
	return t, nil
}

// parseCycle parses a positional cycle number.
func parseCycle(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, usageError{fmt.Errorf("cycle must be a positive integer, got %q", s)}
	}
	return n, nil
}

// cycleTag returns the --cycle flag as a creation-cycle tag, or nil when the
// flag was not given.
func cycleTag(cmd *cobra.Command, n int) *int {
	if !cmd.Flags().Changed("cycle") {
		return nil
	}
	return &n
}

func printCycle(w io.Writer, c types.CycleInfo) {
	if c.Number == nil {
		fmt.Fprintf(w, "%s\n", c.Name)
		return
	}
	tw := table(w)
	fmt.Fprintf(tw, "cycle:\t%s\n", c.Name)
	fmt.Fprintf(tw, "period:\t%s .. %s\n", day(c.Start), day(c.End))
	if *c.Number > 0 {
		fmt.Fprintf(tw, "progress:\t%.1f%%\n", c.Progress)
	}
	fmt.Fprintf(tw, "days remaining:\t%d\n", c.DaysRemaining)
	fmt.Fprintf(tw, "total cycles:\t%d\n", c.TotalCycles)
	tw.Flush()
}

func printPlan(w io.Writer, p *types.CyclePlan) {
	tw := table(w)
	fmt.Fprintf(tw, "plan:\t%s\n", p.PlanID)
	fmt.Fprintf(tw, "title:\t%s\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(tw, "description:\t%s\n", p.Description)
	}
	fmt.Fprintf(tw, "start:\t%s\n", day(p.StartDate))
	fmt.Fprintf(tw, "end:\t%s\n", day(p.EndDate()))
	fmt.Fprintf(tw, "cycles:\t%d x %d months\n", p.TotalCycles, p.CycleLengthMonths)
	fmt.Fprintf(tw, "active:\t%t\n", p.Active)
	fmt.Fprintf(tw, "primary:\t%t\n", p.IsPrimary)
	tw.Flush()
}

func printSnapshot(w io.Writer, s *types.CycleSnapshot) {
	tw := table(w)
	fmt.Fprintf(tw, "cycle:\t%d (%s .. %s)\n", s.CycleNumber, day(s.Period.Start), day(s.Period.End))
	fmt.Fprintf(tw, "origin:\t%s\n", s.Origin)
	fmt.Fprintf(tw, "\ttotal\tnew\tsystem\n")
	for _, c := range types.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c, s.Totals.Get(c), s.New.Get(c), s.System.Activities.Get(c))
	}
	fmt.Fprintf(tw, "participants:\t%d\n", s.ParticipantSum())
	fmt.Fprintf(tw, "books:\t%d started, %d completed this cycle\n", s.NewBooks.Started, s.NewBooks.Completed)
	d := s.System.Demographics
	fmt.Fprintf(tw, "demographics:\t%d children, %d junior youth, %d youth, %d adults\n",
		d.Children, d.JuniorYouth, d.Youth, d.Adults)
	if s.GrowthFrozen() {
		fmt.Fprintf(tw, "growth:\tactivities %+.1f%%, participants %+.1f%%, books %+.1f%%\n",
			s.Growth.ActivitiesPct, s.Growth.ParticipantsPct, s.Growth.BooksPct)
	}
	tw.Flush()

	if len(s.Books) > 0 {
		fmt.Fprintln(w)
		tw = table(w)
		fmt.Fprintln(tw, "CATEGORY\tBOOK\tSTARTED\tCOMPLETED")
		for _, b := range s.Books {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", b.Category, b.BookName, b.Started, b.Completed)
		}
		tw.Flush()
	}
}
