package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Manage the owner's editable statistics",
	}
	cmd.AddCommand(newStatsShowCmd(a), newStatsSetCmd(a))
	return cmd
}

func newStatsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the editable statistics",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, _, err := a.scope()
			if err != nil {
				return err
			}
			st, err := svc.GetStatistics(cmd.Context(), owner)
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%w: no statistics for %s; use stats set", types.ErrConfigurationMissing, owner)
			}
			if err != nil {
				return err
			}
			return a.emit(cmd, st, func(w io.Writer) { printStatistics(w, st) })
		},
	}
}

func newStatsSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <json>",
		Short: "Replace the editable statistics",
		Long: "Replace the editable statistics with a JSON object, or read it from\n" +
			"stdin when the argument is \"-\". Example:\n\n" +
			"  cycles stats set '{\"activities\":{\"study_circles\":4},\"animators\":2}'",
		Args: checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte(args[0])
			if args[0] == "-" {
				var err error
				if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			var st types.EditableStatistics
			if err := json.Unmarshal(payload, &st); err != nil {
				return usageError{fmt.Errorf("parse JSON: %w", err)}
			}

			svc, owner, _, err := a.scope()
			if err != nil {
				return err
			}
			st.OwnerID = owner
			if err := svc.SetStatistics(cmd.Context(), &st); err != nil {
				return err
			}
			return a.emit(cmd, st, func(w io.Writer) { printStatistics(w, &st) })
		},
	}
}

func printStatistics(w io.Writer, st *types.EditableStatistics) {
	tw := table(w)
	fmt.Fprintln(tw, "CATEGORY\tACTIVITIES\tPARTICIPANTS\tQUALIFYING")
	for _, c := range types.Categories {
		p := st.Participants[c]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c, st.Activities.Get(c), p.Total, p.Qualifying)
	}
	tw.Flush()
	fmt.Fprintln(w)

	tw = table(w)
	fmt.Fprintf(tw, "animators:\t%d\n", st.Animators)
	fmt.Fprintf(tw, "teachers:\t%d\n", st.Teachers)
	fmt.Fprintf(tw, "tutors:\t%d\n", st.Tutors)
	fmt.Fprintf(tw, "facilitators:\t%d\n", st.Facilitators)
	fmt.Fprintf(tw, "junior youth locations:\t%d\n", st.JuniorYouthLocations)
	fmt.Fprintf(tw, "completed circles:\t%d\n", st.CompletedCircles)
	fmt.Fprintf(tw, "updated:\t%s\n", day(st.UpdatedAt))
	tw.Flush()
}
