package cli

import (
	"strconv"

	"docminer/internal/util"

	"github.com/spf13/cobra"
)

func newDocumentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "documents",
		Aliases: []string{"ls"},
		Short:   "List ingested documents and their status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Docs.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{
					strconv.FormatInt(d.ID, 10),
					d.Filename,
					string(d.Status),
					d.UploadTime.Local().Format("2006-01-02 15:04:05"),
					util.DisplaySnippet(d.Error, 60),
				})
			}
			printTable(cmd, []string{"ID", "FILE", "STATUS", "UPLOADED", "ERROR"}, rows)
			return nil
		},
	}
}
