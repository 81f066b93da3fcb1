package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pythagorean.app/linkchat/internal/core"
)

const chatHelp = `Commands:
  /react N SYMBOL   react to message N (e.g. /react 2 👍)
  /comment N TEXT   comment on message N
  /comments N       show comments on message N
  /share            print a link to this conversation
  /quit             leave
Anything else is sent as a question.`

// Reactions offered in the help text.
var suggestedReactions = []string{"👍", "👎", "💡", "❓", "🔥"}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat LINK",
		Short: "Open a shared link and ask questions about it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			desc, err := core.NewResolver(a.backend, a.opts).Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			conv := core.NewConversation(a.backend, a.opts)
			if err := conv.Start(desc); err != nil {
				return err
			}
			s := &chatSession{
				out:    out,
				conv:   conv,
				sync:   core.NewSynchronizer(a.backend, conv, a.opts),
				author: a.cfg.Author,
			}
			s.printMessage(conv.Snapshot().Messages[0])
			faint.Fprintf(out, "%s\nReactions: %s\n\n", chatHelp, strings.Join(suggestedReactions, " "))
			return s.run(ctx, cmd.InOrStdin())
		},
	}
}

type chatSession struct {
	out    io.Writer
	conv   *core.Conversation
	sync   *core.Synchronizer
	author string
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				return nil
			}
			continue
		}

		msg, err := s.conv.Ask(ctx, line)
		if err != nil {
			printErr(s.out, err)
			continue
		}
		if err := s.sync.Sync(ctx); err != nil {
			warn.Fprintf(s.out, "annotations may be out of date: %v\n", err)
		}
		s.printMessage(msg)
	}
}

// command handles a slash command and reports whether the session should end.
func (s *chatSession) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(s.out, chatHelp)
	case "/share":
		if url := s.conv.ShareURL(); url != "" {
			fmt.Fprintf(s.out, "Share: %s\n", url)
		} else {
			warn.Fprintln(s.out, "Ask a question first; the conversation has no link yet.")
		}
	case "/react":
		idx, ok := s.index(fields, 3)
		if !ok {
			return false
		}
		counts, err := s.sync.AddReaction(ctx, idx, fields[2])
		if err != nil {
			printErr(s.out, err)
			return false
		}
		fmt.Fprintf(s.out, "Reactions on %d: %s\n", idx, formatReactions(counts))
	case "/comment":
		idx, ok := s.index(fields, 3)
		if !ok {
			return false
		}
		text := strings.Join(fields[2:], " ")
		if _, err := s.sync.AddComment(ctx, idx, text, s.author); err != nil {
			printErr(s.out, err)
			return false
		}
		success.Fprintf(s.out, "Comment added to %d\n", idx)
	case "/comments":
		idx, ok := s.index(fields, 2)
		if !ok {
			return false
		}
		if err := s.sync.FetchComments(ctx, idx); err != nil {
			printErr(s.out, err)
			return false
		}
		thread, _ := s.sync.Comments(idx)
		if len(thread) == 0 {
			faint.Fprintln(s.out, "No comments yet.")
		}
		for _, c := range thread {
			printComment(s.out, c)
		}
	default:
		warn.Fprintf(s.out, "Unknown command %s\n", fields[0])
		fmt.Fprintln(s.out, chatHelp)
	}
	return false
}

func (s *chatSession) index(fields []string, min int) (int, bool) {
	if len(fields) < min {
		warn.Fprintf(s.out, "Usage: see /help\n")
		return 0, false
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil {
		printErr(s.out, fmt.Errorf("%w: %q is not a message number", core.ErrValidation, fields[1]))
		return 0, false
	}
	return idx, true
}

func (s *chatSession) printMessage(m core.Message) {
	label := "You"
	c := success
	if m.Role == core.RoleAssistant {
		label = "Pythagorean"
		c = accent
	}
	c.Fprintf(s.out, "[%d] %s\n", m.Index, label)
	fmt.Fprintln(s.out, m.Content)
	for i, src := range m.Sources {
		faint.Fprintf(s.out, "  source %d: %s\n", i+1, src)
	}
	if counts, _ := s.sync.Reactions(m.Index); counts.Total() > 0 {
		fmt.Fprintf(s.out, "  %s\n", formatReactions(counts))
	}
	fmt.Fprintln(s.out)
}

func formatReactions(counts core.ReactionCounts) string {
	if counts.Total() == 0 {
		return "none"
	}
	symbols := make([]string, 0, len(counts))
	for sym := range counts {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	parts := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		parts = append(parts, fmt.Sprintf("%s %d", sym, counts[sym]))
	}
	return strings.Join(parts, "  ")
}

func printComment(w io.Writer, c core.Comment) {
	accent.Fprintf(w, "  %s", c.Author)
	faint.Fprintf(w, " %s\n", c.Timestamp.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "    %s\n", c.Text)
}

// isNotFound reports whether err means the link or conversation does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
