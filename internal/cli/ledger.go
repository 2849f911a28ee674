package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// categoryNames lists the activity categories for help text.
func categoryNames() string {
	names := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// reportBackfill prints the outcome of a ledger write that may have
// backfilled a past cycle.
func (a *app) reportBackfill(cmd *cobra.Command, what string, snap *types.CycleSnapshot) error {
	if a.flags.jsonMode && snap != nil {
		return printJSON(cmd.OutOrStdout(), snap)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s recorded\n", what)
	if snap != nil {
		fmt.Fprintf(w, "backfilled cycle %d\n", snap.CycleNumber)
	}
	return nil
}

func newActivityCmd(a *app) *cobra.Command {
	var (
		act   types.Activity
		cat   string
		cycle int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an activity",
		Long: "Record an activity in the ledger. With --cycle set to a past cycle the\n" +
			"activity is also counted in that cycle's snapshot.",
		Args: checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			act.OwnerID = owner
			act.PlanID = planID
			act.Category = types.Category(cat)
			act.CreationCycle = cycleTag(cmd, cycle)
			snap, err := svc.AddActivity(cmd.Context(), &act)
			if err != nil {
				return err
			}
			return a.reportBackfill(cmd, "activity "+act.ActivityID, snap)
		},
	}
	fl := add.Flags()
	fl.StringVar(&cat, "category", "", "activity category: "+categoryNames())
	fl.StringVar(&act.Name, "name", "", "activity name (default: the category)")
	fl.IntVar(&act.Participants, "participants", 0, "number of participants")
	fl.IntVar(&act.Qualifying, "qualifying", 0, "participants meeting the membership criterion")
	fl.IntVar(&cycle, "cycle", 0, "cycle the activity was started in")
	_ = add.MarkFlagRequired("category")

	cmd := &cobra.Command{Use: "activity", Short: "Manage ledger activities"}
	cmd.AddCommand(add)
	return cmd
}

func newBookCmd(a *app) *cobra.Command {
	var (
		study     types.BookStudy
		cat       string
		started   string
		completed string
		cycle     int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a book study",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			bc, err := types.ParseBookCategory(cat)
			if err != nil {
				return err
			}
			if started != "" {
				if study.StartedAt, err = parseDay("started", started); err != nil {
					return err
				}
			}
			if completed != "" {
				done, err := parseDay("completed", completed)
				if err != nil {
					return err
				}
				study.CompletedAt = &done
			}

			svc, owner, planID, err := a.scope()
			if err != nil {
				return err
			}
			study.OwnerID = owner
			study.PlanID = planID
			study.Category = bc
			study.CreationCycle = cycleTag(cmd, cycle)
			snap, err := svc.AddBookStudy(cmd.Context(), &study)
			if err != nil {
				return err
			}
			return a.reportBackfill(cmd, "book study "+study.StudyID, snap)
		},
	}
	fl := add.Flags()
	fl.StringVar(&cat, "category", string(types.BookCategorySequence), "book category: sequence, childrens-classes, junior-youth, other")
	fl.StringVar(&study.BookName, "book", "", "book name")
	fl.StringVar(&started, "started", "", "start date (YYYY-MM-DD, default: today)")
	fl.StringVar(&completed, "completed", "", "completion date (YYYY-MM-DD)")
	fl.IntVar(&cycle, "cycle", 0, "cycle the study was started in")
	_ = add.MarkFlagRequired("book")

	cmd := &cobra.Command{Use: "book", Short: "Manage book studies"}
	cmd.AddCommand(add)
	return cmd
}

func newContactCmd(a *app) *cobra.Command {
	var (
		contact types.Contact
		birth   string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a roster contact",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if birth != "" {
				b, err := parseDay("birth", birth)
				if err != nil {
					return err
				}
				contact.BirthDate = &b
			}
			svc, owner, _, err := a.scope()
			if err != nil {
				return err
			}
			contact.OwnerID = owner
			if err := svc.AddContact(cmd.Context(), &contact); err != nil {
				return err
			}
			return a.emit(cmd, contact, func(w io.Writer) {
				fmt.Fprintf(w, "contact %s added\n", contact.ContactID)
			})
		},
	}
	add.Flags().StringVar(&contact.Name, "name", "", "contact name")
	add.Flags().StringVar(&birth, "birth", "", "birth date (YYYY-MM-DD)")
	_ = add.MarkFlagRequired("name")

	cmd := &cobra.Command{Use: "contact", Short: "Manage the roster"}
	cmd.AddCommand(add)
	return cmd
}
