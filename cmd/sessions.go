package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/inkgate/inkgate/internal/config"
	"github.com/inkgate/inkgate/internal/store"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	roleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		displaySessions(sessions)
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.GetSession(args[0])
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if sess == nil {
			return fmt.Errorf("session %s not found", args[0])
		}
		displayTranscript(sess)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ok, err := st.DeleteSession(args[0])
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if !ok {
			return fmt.Errorf("session %s not found", args[0])
		}
		fmt.Println(headerStyle.Render("Deleted session " + args[0]))
		return nil
	},
}

var sessionsCleanupMaxAge time.Duration

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete sessions older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.CleanupOldSessions(sessionsCleanupMaxAge)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("Deleted %d session(s)", n)))
		return nil
	},
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return st, nil
}

func displaySessions(sessions []store.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Println(headerStyle.Render("No sessions found"))
		return
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(sessions))))
	fmt.Println()

	w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Tokens")+"\t"+titleStyle.Render("Updated")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, sum := range sessions {
		title := sum.Title
		if title == "" {
			title = "Untitled"
		}
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		shortID := sum.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(shortID),
			lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Render(title),
			countStyle.Render(strconv.Itoa(sum.MessageCount)),
			countStyle.Render(strconv.FormatInt(sum.Usage.TotalTokens, 10)),
			dateStyle.Render(relativeTime(sum.UpdatedAt)))
	}

	_ = w.Flush()
	fmt.Println()
	fmt.Println(idStyle.Render("Tip: use the full ID (e.g., ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(sessions[0].ID) +
		idStyle.Render(") with `inkgate sessions show <id>`"))
}

func displayTranscript(sess *store.Session) {
	title := sess.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Println(headerStyle.Render(title))
	fmt.Println(idStyle.Render(sess.ID) + "  " + dateStyle.Render(relativeTime(sess.UpdatedAt)))
	fmt.Println()

	for _, m := range sess.Messages {
		fmt.Println(roleStyle.Render(strings.ToUpper(m.Role)))
		if m.Reasoning != "" {
			fmt.Println(dateStyle.Render("[thinking] " + m.Reasoning))
		}
		fmt.Println(m.Content)
		for _, inv := range m.Tools {
			line := fmt.Sprintf("⚙ %s (%s)", inv.Tool, inv.Status)
			if inv.Error != "" {
				line += ": " + inv.Error
			}
			fmt.Println(toolStyle.Render(line))
		}
		for _, src := range m.Sources {
			fmt.Println(toolStyle.Render("⎘ source: " + src.Title))
		}
		fmt.Println()
	}

	fmt.Println(dateStyle.Render(fmt.Sprintf("tokens: %d in / %d out / %d reasoning / %d cached",
		sess.Usage.InputTokens, sess.Usage.OutputTokens,
		sess.Usage.ReasoningTokens, sess.Usage.CacheTokens)))
}

func relativeTime(unix int64) string {
	if unix <= 0 {
		return "—"
	}
	t := time.Unix(unix, 0)
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
	sessionsCleanupCmd.Flags().DurationVar(&sessionsCleanupMaxAge, "max-age", 30*24*time.Hour, "Delete sessions idle longer than this")
}
