package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pythagorean.app/linkchat/internal/core"
)

func newActivityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activity LINK",
		Short: "Show the conversations, reactions and comments on a link you shared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			report, err := core.NewActivityViewer(a.backend, a.opts).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			switch report.Context.Kind {
			case core.KindCollection:
				accent.Fprintf(out, "Collection %s: %d documents (%s)\n", report.LinkID,
					report.Context.DocumentCount, strings.Join(report.Context.Filenames, ", "))
			default:
				accent.Fprintf(out, "Document %s: %s\n", report.LinkID, report.Context.DisplayName)
			}
			fmt.Fprintf(out, "%d conversations, %d reactions, %d comments\n",
				report.TotalConversations, report.TotalReactions, report.TotalComments)

			for _, conv := range report.Conversations {
				fmt.Fprintln(out)
				accent.Fprintf(out, "Conversation %s", conv.ConversationID)
				faint.Fprintf(out, " started %s, %d messages\n",
					conv.CreatedAt.Local().Format("2006-01-02 15:04"), conv.MessageCount)
				for _, m := range conv.Messages {
					who := "Q"
					if m.Role == core.RoleAssistant {
						who = "A"
					}
					fmt.Fprintf(out, "  [%d] %s: %s\n", m.Index, who, firstLine(m.Content))
					if m.Reactions.Total() > 0 {
						fmt.Fprintf(out, "      %s\n", formatReactions(m.Reactions))
					}
					for _, c := range m.Comments {
						printComment(out, c)
					}
				}
			}
			return nil
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
