package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lazypower/rapport/internal/client"
	"github.com/lazypower/rapport/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	remindDryRun bool
	remindRemote bool
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run one evaluation cycle and print due reminders",
	Long: "Evaluate every enabled rule against every contact once. Reminders are stored " +
		"unless --dry-run is set. With --remote the cycle runs on a running server.",
	Args: cobra.NoArgs,
	RunE: runRemind,
}

func init() {
	remindCmd.Flags().BoolVar(&remindDryRun, "dry-run", false, "Print candidates without storing them")
	remindCmd.Flags().BoolVar(&remindRemote, "remote", false, "Ask the running server (RAPPORT_URL) to evaluate")
}

func runRemind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		list []scheduler.Reminder
		err  error
	)
	if remindRemote {
		list, err = client.New("").Evaluate(ctx, remindDryRun)
	} else {
		rt, openErr := openRuntime(ctx)
		if openErr != nil {
			return openErr
		}
		defer rt.Close()

		if remindDryRun {
			list, err = rt.svc.Preview(ctx)
		} else {
			list, err = rt.svc.EvaluateNow(ctx)
		}
	}
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	printReminders(cmd.OutOrStdout(), list, time.Now(), remindDryRun)
	return nil
}

func printReminders(w io.Writer, list []scheduler.Reminder, now time.Time, dryRun bool) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No reminders due.")
		return
	}

	verb := "created"
	if dryRun {
		verb = "would be created"
	}
	fmt.Fprintf(w, "%d %s %s:\n\n", len(list), plural(len(list), "reminder", "reminders"), verb)
	for _, r := range list {
		fmt.Fprintf(w, "  [%s] %s\n", r.Rule.Type(), r.Message)
		fmt.Fprintf(w, "    contact %s, due %s\n", r.ContactID, humanize.RelTime(r.DueDate, now, "ago", "from now"))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
