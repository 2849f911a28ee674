package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and maintain cycle snapshots",
	}
	cmd.AddCommand(
		newSnapshotListCmd(a),
		newSnapshotShowCmd(a),
		newSnapshotRecomputeCmd(a),
		newSnapshotDeleteCmd(a),
		newSnapshotExportCmd(a),
		newSnapshotImportCmd(a),
	)
	return cmd
}

func newSnapshotListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, most recent cycle first",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			list, err := svc.ListSnapshots(cmd.Context(), owner, planID)
			if err != nil {
				return err
			}
			return a.emit(cmd, list, func(w io.Writer) {
				tw := table(w)
				fmt.Fprintln(tw, "CYCLE\tSTART\tEND\tORIGIN\tACTIVITIES\tPARTICIPANTS\tGROWTH")
				for _, s := range list {
					growth := "-"
					if s.GrowthFrozen() {
						growth = fmt.Sprintf("%+.1f%%", s.Growth.ActivitiesPct)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
						s.CycleNumber, day(s.Period.Start), day(s.Period.End), s.Origin,
						s.ActivitySum(), s.ParticipantSum(), growth)
				}
				tw.Flush()
			})
		},
	}
}

func newSnapshotShowCmd(a *app) *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "show <n>",
		Short: "Show the snapshot of cycle n",
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
			snap, err := svc.GetSnapshot(cmd.Context(), owner, planID, n)
			if err != nil {
				return err
			}
			if snap == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "cycle %d has no snapshot\n", n)
				return nil
			}
			if flat {
				return printJSON(cmd.OutOrStdout(), snap.Record())
			}
			return a.emit(cmd, snap, func(w io.Writer) { printSnapshot(w, snap) })
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "print the flattened key/value record")
	return cmd
}

func newSnapshotRecomputeCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recompute [n]",
		Short: "Refresh the ledger-derived totals of a snapshot",
		Long: "Recompute the system totals and book breakdown of cycle n, or of every\n" +
			"snapshot with --all. Stored totals and growth are not changed.",
		Args: checkArgs(func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			if all {
				count, err := svc.RecomputeAllSystemTotals(cmd.Context(), owner, planID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d snapshots\n", count)
				return nil
			}

			n, err := parseCycle(args[0])
			if err != nil {
				return err
			}
			snap, err := svc.RecomputeSystemTotals(cmd.Context(), owner, planID, n)
			if err != nil {
				return err
			}
			return a.emit(cmd, snap, func(w io.Writer) { printSnapshot(w, snap) })
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "recompute every snapshot of the plan")
	return cmd
}

func newSnapshotDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <n>",
		Short: "Delete the snapshot of cycle n",
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
			if err := svc.DeleteSnapshot(cmd.Context(), owner, planID, n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot of cycle %d deleted\n", n)
			return nil
		},
	}
}

func newSnapshotExportCmd(a *app) *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Write the plan's snapshots to a JSONL file",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			count, err := svc.ExportSnapshots(cmd.Context(), owner, planID, args[0], flat)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d snapshots to %s\n", count, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "write flattened key/value records")
	return cmd
}

func newSnapshotImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Load snapshots from a JSONL export into the plan",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			res, err := svc.ImportSnapshots(cmd.Context(), owner, planID, args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "imported %d, duplicates %d, skipped %d\n", res.Imported, res.Duplicates, res.Skipped)
			})
		},
	}
}
