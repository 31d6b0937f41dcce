package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"docminer/internal/extract"
	"docminer/internal/models"
	"docminer/internal/util"

	"github.com/spf13/cobra"
)

func newIngestCmd(opts *options) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Extract and index documents",
		Long:  "Extract text from PDF, Excel, CSV, Word and image files and index it for dataset extraction. Up to five files are processed at once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := append([]string(nil), args...)
			if dir != "" {
				found, err := supportedFiles(dir)
				if err != nil {
					return err
				}
				paths = append(paths, found...)
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files to ingest")
			}
			for _, p := range paths {
				if !extract.Supported(p) {
					return fmt.Errorf("%w: %s", util.ErrUnsupportedFormat, p)
				}
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Ingestor.IngestPaths(cmd.Context(), paths)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(results))
			failed := 0
			for _, r := range results {
				if r.Status != models.StatusCompleted {
					failed++
				}
				rows = append(rows, []string{
					strconv.FormatInt(r.DocID, 10),
					r.Filename,
					string(r.Status),
					strconv.Itoa(r.Segments),
					util.DisplaySnippet(r.Error, 80),
				})
			}
			printTable(cmd, []string{"ID", "FILE", "STATUS", "SEGMENTS", "ERROR"}, rows)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Also ingest every supported file in this directory")
	return cmd
}

func supportedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !extract.Supported(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
