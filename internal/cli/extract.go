package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"docminer/internal/export"
	"docminer/internal/models"
	"docminer/internal/util"

	"github.com/spf13/cobra"
)

func newExtractCmd(opts *options) *cobra.Command {
	var (
		format    string
		out       string
		showAudit bool
	)
	cmd := &cobra.Command{
		Use:   "extract <prompt>",
		Short: "Extract a dataset from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			switch format {
			case "json", "csv":
			case "xlsx", "excel":
				if out == "" {
					return fmt.Errorf("--out is required for xlsx output")
				}
			default:
				return fmt.Errorf("unsupported format %q (json|csv|xlsx)", format)
			}
			prompt := strings.TrimSpace(args[0])
			if prompt == "" {
				return fmt.Errorf("prompt is required")
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.RAG.Extract(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			data, err := res.DatasetJSON()
			if err != nil {
				return err
			}
			if err := a.Docs.RecordExtraction(cmd.Context(), models.ExtractionRun{
				Prompt:     prompt,
				Provider:   res.Provider.Name,
				Model:      res.Provider.Model,
				Parsed:     res.Parsed,
				Dataset:    res.Dataset,
				AuditTrail: res.AuditTrail,
				LatencyMS:  res.Latency.Milliseconds(),
			}); err != nil {
				a.Logger.Warn("record extraction run", "err", err)
			}

			if err := writeDataset(cmd, format, out, data); err != nil {
				return err
			}
			if showAudit {
				rows := make([][]string, 0, len(res.Segments))
				for _, s := range res.Segments {
					rows = append(rows, []string{
						fmt.Sprint(s.Metadata[models.MetaSource]),
						locator(s.Metadata),
						fmt.Sprintf("%.3f", s.Score),
						util.SegmentPreview(s.Text, prompt, 80),
					})
				}
				printTable(cmd, []string{"SOURCE", "AT", "SCORE", "PREVIEW"}, rows)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json|csv|xlsx)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the dataset to this file instead of stdout")
	cmd.Flags().BoolVar(&showAudit, "audit", false, "Print the segments the dataset was extracted from")
	return cmd
}

// writeDataset renders data in format. A file target is replaced atomically.
func writeDataset(cmd *cobra.Command, format, out string, data []byte) error {
	var buf bytes.Buffer
	switch format {
	case "csv":
		t, err := export.FromJSON(data)
		if err != nil {
			return err
		}
		if err := t.WriteCSV(&buf); err != nil {
			return err
		}
	case "xlsx", "excel":
		if err := export.WriteXLSX(&buf, data); err != nil {
			return err
		}
	default:
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
	}
	if out != "" {
		return util.WriteBytesAtomic(out, buf.Bytes())
	}
	_, err := buf.WriteTo(cmd.OutOrStdout())
	return err
}

func locator(m models.Metadata) string {
	if p, ok := m[models.MetaPage]; ok {
		return fmt.Sprintf("page %v", p)
	}
	if s, ok := m[models.MetaSheet]; ok {
		return fmt.Sprintf("sheet %v", s)
	}
	return "-"
}
