package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cycles/internal/engine"
	"github.com/mesh-intelligence/cycles/pkg/types"
)

func newCycleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Report cycles of a plan",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "current",
			Short: "Show the live cycle",
			Args:  checkArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, owner, planID, err := a.scope()
				if err != nil {
					return err
				}
				info, err := svc.GetCurrentCycle(cmd.Context(), owner, planID)
				if err != nil {
					return err
				}
				return a.emit(cmd, info, func(w io.Writer) { printCycle(w, info) })
			},
		},
		&cobra.Command{
			Use:   "show <n>",
			Short: "Show the date range of cycle n",
			Args:  checkArgs(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := parseCycle(args[0])
				if err != nil {
					return err
				}
				svc, owner, planID, err := a.scope()
				if err != nil {
					return err
				}
				info, err := svc.GetCycle(cmd.Context(), owner, planID, n)
				if err != nil {
					return err
				}
				if info == nil {
					return fmt.Errorf("%w: cycle %d is outside the plan", types.ErrNotFound, n)
				}
				return a.emit(cmd, info, func(w io.Writer) { printCycle(w, *info) })
			},
		},
	)
	return cmd
}

func newCloseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the live cycle into a snapshot",
		Long: "Freeze the live cycle: copy the editable statistics, derive system totals\n" +
			"from the ledger, and store growth against the previous cycle. Closing a\n" +
			"cycle that already has a snapshot changes nothing.",
		Args: checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			snap, err := svc.CloseCurrentCycle(cmd.Context(), owner, planID)
			if errors.Is(err, types.ErrDuplicateSnapshot) {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to do: %v\n", err)
				return nil
			}
			if err != nil {
				return err
			}
			return a.emit(cmd, snap, func(w io.Writer) {
				fmt.Fprintf(w, "closed cycle %d\n", snap.CycleNumber)
				printSnapshot(w, snap)
			})
		},
	}
}

func newGrowthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "growth",
		Short: "Show average growth over the most recent snapshots",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			ov, err := svc.GrowthOverview(cmd.Context(), owner, planID)
			if err != nil {
				return err
			}
			return a.emit(cmd, ov, func(w io.Writer) { printGrowth(w, ov) })
		},
	}
}

func printGrowth(w io.Writer, ov *engine.GrowthOverview) {
	fmt.Fprintf(w, "%s: %s\n\n", ov.Plan.Title, ov.Current.Name)
	if ov.Average.Cycles == 0 {
		fmt.Fprintln(w, "no snapshots yet")
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "CYCLE\tACTIVITIES\tPARTICIPANTS\tBOOKS")
	for _, s := range ov.Recent {
		fmt.Fprintf(tw, "%d\t%+.1f%%\t%+.1f%%\t%+.1f%%\n",
			s.CycleNumber, s.Growth.ActivitiesPct, s.Growth.ParticipantsPct, s.Growth.BooksPct)
	}
	fmt.Fprintf(tw, "average of %d\t%+.1f%%\t%+.1f%%\t%+.1f%%\n",
		ov.Average.Cycles, ov.Average.ActivitiesPct, ov.Average.ParticipantsPct, ov.Average.BooksPct)
	tw.Flush()
}

func newSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "List past cycles that have no snapshot",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			cycles, err := svc.SuggestBackfillCycles(cmd.Context(), owner, planID)
			if err != nil {
				return err
			}
			if cycles == nil {
				cycles = []types.CycleInfo{}
			}
			return a.emit(cmd, cycles, func(w io.Writer) {
				if len(cycles) == 0 {
					fmt.Fprintln(w, "every past cycle has a snapshot")
					return
				}
				tw := table(w)
				fmt.Fprintln(tw, "CYCLE\tSTART\tEND")
				for _, c := range cycles {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", *c.Number, day(c.Start), day(c.End))
				}
				tw.Flush()
			})
		},
	}
}
