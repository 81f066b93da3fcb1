package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pythagorean.app/linkchat/internal/core"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send FILE...",
		Short: "Upload files and print a shareable link",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			orch := core.NewOrchestrator(a.backend, a.opts)

			res, err := orch.Submit(cmd.Context(), core.FilesFromPaths(args), func(ev core.ProgressEvent) {
				switch ev.Kind {
				case core.ProgressCollectionCreated:
					faint.Fprintf(out, "collection %s created\n", ev.CollectionID)
				case core.ProgressFileStarted:
					fmt.Fprintf(out, "uploading %s ... ", ev.Name)
				case core.ProgressFileSucceeded:
					success.Fprintf(out, "done (%d chunks)\n", ev.Summary.ChunkCount)
				case core.ProgressFileFailed:
					failure.Fprintf(out, "failed: %v\n", ev.Err)
				}
			})
			if err != nil {
				return err
			}

			if len(res.Failures) > 0 {
				warn.Fprintf(out, "%d of %d files failed\n", len(res.Failures), len(args))
			}
			kind := "document"
			if res.IsCollection {
				kind = fmt.Sprintf("collection of %d documents", len(res.Documents))
			}
			fmt.Fprintf(out, "\nShared %s\n", kind)
			fmt.Fprint(out, "Link: ")
			accent.Fprintln(out, res.LinkID)
			if res.ShareURL != "" {
				fmt.Fprintf(out, "URL:  %s\n", res.ShareURL)
			}
			return nil
		},
	}
}
