package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lazypower/rapport/internal/ingest"
	"github.com/lazypower/rapport/internal/model"
	"github.com/spf13/cobra"
)

// --- score command ---

var scoreCmd = &cobra.Command{
	Use:   "score <contactID>",
	Short: "Compute and store a contact's relationship score",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	s, err := rt.svc.Score(args[0])
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %.1f (%s)\n", s.ContactID, s.Overall, s.Trend)
	fmt.Fprintf(out, "  recency    %5.1f\n", s.Recency)
	fmt.Fprintf(out, "  frequency  %5.1f\n", s.Frequency)
	fmt.Fprintf(out, "  engagement %5.1f\n", s.Engagement)
	return nil
}

// --- ingest command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.jsonl>",
	Short: "Import interactions from a JSONL log",
	Long: "Each line is one JSON interaction with contact_id, timestamp and optionally " +
		"type, summary, notes, duration_minutes and quality. Malformed lines and " +
		"interactions for unknown contacts are skipped.",
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	parsed, err := ingest.ParseFile(args[0])
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.svc.Ingest(cmd.Context(), parsed.Interactions)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s %s (%d malformed, %d for unknown contacts)\n",
		humanize.Comma(int64(res.Stored)), plural(res.Stored, "interaction", "interactions"),
		parsed.Skipped, res.Unknown)
	return nil
}

// --- contact command ---

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage contacts",
}

var (
	contactID    string
	contactTags  []string
	contactNotes string
)

var contactAddCmd = &cobra.Command{
	Use:   "add <name...>",
	Short: "Add a contact",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runContactAdd,
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts with their last contact time",
	Args:  cobra.NoArgs,
	RunE:  runContactList,
}

func init() {
	contactAddCmd.Flags().StringVar(&contactID, "id", "", "Contact id (generated when empty)")
	contactAddCmd.Flags().StringSliceVar(&contactTags, "tag", nil, "Tag (repeatable)")
	contactAddCmd.Flags().StringVar(&contactNotes, "notes", "", "Free-form notes")

	contactCmd.AddCommand(contactAddCmd)
	contactCmd.AddCommand(contactListCmd)
}

func runContactAdd(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	c := model.Contact{
		ID:   contactID,
		Name: strings.Join(args, " "),
		Tags: contactTags,
	}
	if contactNotes != "" {
		n := contactNotes
		c.Notes = &n
	}

	created, err := rt.svc.CreateContact(cmd.Context(), c)
	if err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", created.Name, created.ID)
	return nil
}

func runContactList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	contacts, err := rt.svc.Contacts()
	if err != nil {
		return fmt.Errorf("list contacts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(contacts) == 0 {
		fmt.Fprintln(out, "No contacts yet.")
		return nil
	}
	now := time.Now()
	for _, c := range contacts {
		last := "never"
		if c.LastContactedAt != nil {
			last = humanize.RelTime(*c.LastContactedAt, now, "ago", "from now")
		}
		fmt.Fprintf(out, "  %s  %s, last contacted %s\n", c.ID, c.DisplayName(), last)
	}
	return nil
}
