package cli

import (
	"fmt"
	"strings"

	"github.com/lazypower/rapport/internal/client"
	"github.com/lazypower/rapport/internal/model"
	"github.com/spf13/cobra"
)

var (
	logType     string
	logDuration float64
	logQuality  float64
	logServer   string
)

var logCmd = &cobra.Command{
	Use:   "log <contactID> <text...>",
	Short: "Log an interaction on a running server",
	Long: "Send an interaction to the server. The text becomes the notes; without --type " +
		"the channel is guessed from it, and without --quality the server rates it.",
	Args: cobra.MinimumNArgs(2),
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVarP(&logType, "type", "t", "", "Interaction type: call, message, meeting, email, other")
	logCmd.Flags().Float64VarP(&logDuration, "duration", "d", 0, "Duration in minutes")
	logCmd.Flags().Float64VarP(&logQuality, "quality", "q", 0, "Quality 1-100 (0 lets the server rate it)")
	logCmd.Flags().StringVar(&logServer, "server", "", "Server URL (default RAPPORT_URL or http://127.0.0.1:37778)")
}

func runLog(cmd *cobra.Command, args []string) error {
	notes := strings.Join(args[1:], " ")
	req := client.InteractionRequest{
		Type:    model.InteractionType(strings.ToLower(logType)),
		Notes:   &notes,
		Quality: logQuality,
	}
	if cmd.Flags().Changed("duration") {
		d := logDuration
		req.Duration = &d
	}

	c := client.New(logServer)
	got, err := c.LogInteraction(cmd.Context(), args[0], req)
	if err != nil {
		return fmt.Errorf("log interaction: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logged %s with %s (quality %.0f)\n", got.Type, got.ContactID, got.Quality)
	if tags := got.Signals.ContextTags; len(tags) > 0 {
		fmt.Fprintf(out, "  %s\n", strings.Join(tags, " "))
	}
	return nil
}
