package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage cycle plans",
	}
	cmd.AddCommand(
		newPlanCreateCmd(a),
		newPlanListCmd(a),
		newPlanShowCmd(a),
		newPlanUpdateCmd(a),
		newPlanPrimaryCmd(a),
		newPlanCloseCmd(a),
		newPlanRestartCmd(a),
		newPlanDeleteCmd(a),
		newPlanCyclesCmd(a),
	)
	return cmd
}

// planFlags are the editable fields of a plan.
type planFlags struct {
	title       string
	description string
	start       string
	length      int
	cycles      int
}

func (f *planFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "plan title, unique per owner")
	fl.StringVar(&f.description, "description", "", "free-text description")
	fl.StringVar(&f.start, "start", "", "first day of cycle 1 (YYYY-MM-DD)")
	fl.IntVar(&f.length, "length", 3, "months per cycle")
	fl.IntVar(&f.cycles, "cycles", 36, "number of cycles in the plan")
}

// apply copies the flags the user set onto plan.
func (f *planFlags) apply(cmd *cobra.Command, plan *types.CyclePlan) error {
	fl := cmd.Flags()
	if fl.Changed("title") {
		plan.Title = f.title
	}
	if fl.Changed("description") {
		plan.Description = f.description
	}
	if fl.Changed("start") {
		start, err := parseDay("start", f.start)
		if err != nil {
			return err
		}
		plan.StartDate = start
	}
	if fl.Changed("length") {
		plan.CycleLengthMonths = f.length
	}
	if fl.Changed("cycles") {
		plan.TotalCycles = f.cycles
	}
	return nil
}

func newPlanCreateCmd(a *app) *cobra.Command {
	var (
		f       planFlags
		primary bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a plan",
		Long:  "Create a plan. The owner's first plan becomes primary.",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, _, err := a.scope()
			if err != nil {
				return err
			}
			plan := &types.CyclePlan{
				OwnerID:           owner,
				Title:             f.title,
				Description:       f.description,
				CycleLengthMonths: f.length,
				TotalCycles:       f.cycles,
				Active:            true,
				IsPrimary:         primary,
				StartDate:         a.now(),
			}
			if err := f.apply(cmd, plan); err != nil {
				return err
			}
			if err := svc.CreatePlan(cmd.Context(), plan); err != nil {
				return err
			}
			return a.emit(cmd, plan, func(w io.Writer) { printPlan(w, plan) })
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&primary, "primary", false, "make the new plan primary")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newPlanListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the owner's plans",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, _, err := a.scope()
			if err != nil {
				return err
			}
			plans, err := svc.ListPlans(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return a.emit(cmd, plans, func(w io.Writer) {
				tw := table(w)
				fmt.Fprintln(tw, "ID\tTITLE\tSTART\tCYCLES\tACTIVE\tPRIMARY")
				for _, p := range plans {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%dx%dm\t%t\t%t\n",
						p.PlanID, p.Title, day(p.StartDate), p.TotalCycles, p.CycleLengthMonths, p.Active, p.IsPrimary)
				}
				tw.Flush()
			})
		},
	}
}

func newPlanShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a plan (default: the primary plan)",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			plan, err := svc.GetPlan(cmd.Context(), owner, planID)
			if err != nil {
				return err
			}
			return a.emit(cmd, plan, func(w io.Writer) { printPlan(w, plan) })
		},
	}
}

func newPlanUpdateCmd(a *app) *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change a plan's title, description, start, or shape",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			plan, err := svc.GetPlan(cmd.Context(), owner, planID)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, plan); err != nil {
				return err
			}
			if err := svc.UpdatePlan(cmd.Context(), plan); err != nil {
				return err
			}
			return a.emit(cmd, plan, func(w io.Writer) { printPlan(w, plan) })
		},
	}
	f.register(cmd)
	return cmd
}

func newPlanPrimaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "primary <plan-id>",
		Short: "Make a plan the owner's primary plan",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, owner, _, err := a.scope()
			if err != nil {
				return err
			}
			if err := svc.SetPrimary(cmd.Context(), owner, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan %s is now primary\n", args[0])
			return nil
		},
	}
}

func newPlanCloseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Deactivate a plan",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			plan, err := svc.ClosePlan(cmd.Context(), owner, planID)
			if err != nil {
				return err
			}
			return a.emit(cmd, plan, func(w io.Writer) { printPlan(w, plan) })
		},
	}
}

func newPlanRestartCmd(a *app) *cobra.Command {
	var start string
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Reactivate a plan from a new start date (default: today)",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			var from time.Time
			if start != "" {
				if from, err = parseDay("start", start); err != nil {
					return err
				}
			}
			plan, err := svc.RestartPlan(cmd.Context(), owner, planID, from)
			if err != nil {
				return err
			}
			return a.emit(cmd, plan, func(w io.Writer) { printPlan(w, plan) })
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "new first day of cycle 1 (YYYY-MM-DD)")
	return cmd
}

func newPlanDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <plan-id>",
		Short: "Delete a plan that has no snapshots",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, owner, _, err := a.scope()
			if err != nil {
				return err
			}
			if err := svc.DeletePlan(cmd.Context(), owner, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan %s deleted\n", args[0])
			return nil
		},
	}
}

func newPlanCyclesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List the date range of every cycle in a plan",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			plan, cycles, err := svc.ListCycles(cmd.Context(), owner, planID)
			if err != nil {
				return err
			}
			cur := types.CalculateCurrent(plan, a.now())
			return a.emit(cmd, cycles, func(w io.Writer) {
				tw := table(w)
				fmt.Fprintln(tw, "CYCLE\tSTART\tEND\t")
				for _, c := range cycles {
					mark := ""
					if cur.Number != nil && *cur.Number == *c.Number {
						mark = "current"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", *c.Number, day(c.Start), day(c.End), mark)
				}
				tw.Flush()
			})
		},
	}
}
