package admin

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/service"
)

// ReportCmd returns the report command
func ReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a multi-section report from the indexed documents",
		Long: `Generate a report and print its Markdown export.
Sections are given as "Name" or "Name: requirements", one flag per section.`,
		Example: `  meddocsd report --title "Discharge summary" \
    --section "Medications: current doses and changes" \
    --section "Laboratory results"`,
		RunE: runReport,
	}

	cmd.Flags().String("title", "", "Report title")
	cmd.Flags().StringArray("section", nil, "Section spec, repeatable")
	cmd.Flags().StringSlice("doc", nil, "Restrict retrieval to these document ids")
	cmd.Flags().StringP("output", "o", "", "Write the Markdown to this file instead of stdout")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("section")

	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer initTelemetry(cfg)()

	title, _ := cmd.Flags().GetString("title")
	rawSections, _ := cmd.Flags().GetStringArray("section")
	docIDs, _ := cmd.Flags().GetStringSlice("doc")
	output, _ := cmd.Flags().GetString("output")

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Reports.Create(ctx, service.CreateReportInput{
		Title:       title,
		Sections:    parseSections(rawSections),
		DocumentIDs: docIDs,
	})
	if err != nil {
		return err
	}
	dimColor.Fprintf(cmd.ErrOrStderr(), "generating report %s\n", report.ID)

	err = app.drain(ctx, func(ctx context.Context) (bool, error) {
		report, err = app.Reports.Get(ctx, report.ID)
		if err != nil {
			return false, err
		}
		return report.Status.Terminal(), nil
	})
	if err != nil {
		return err
	}
	if report.Status == domain.StatusFailed {
		return fmt.Errorf("report %s failed: %s", report.ID, report.Error)
	}

	body, _, err := app.Reports.Download(ctx, report.ID)
	if err != nil {
		return err
	}
	defer body.Close()

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if _, err := io.Copy(w, body); err != nil {
		return err
	}

	for _, s := range report.Content {
		if s.Failed {
			failColor.Fprintf(cmd.ErrOrStderr(), "section %q could not be generated\n", s.Name)
		}
	}
	if output != "" {
		okColor.Fprintf(cmd.ErrOrStderr(), "✓ wrote %s\n", output)
	}
	return nil
}

// parseSections splits "Name: requirements" flags into section specs.
func parseSections(raw []string) []domain.SectionSpec {
	specs := make([]domain.SectionSpec, 0, len(raw))
	for _, r := range raw {
		name, req, _ := strings.Cut(r, ":")
		specs = append(specs, domain.SectionSpec{
			Name:         strings.TrimSpace(name),
			Requirements: strings.TrimSpace(req),
		})
	}
	return specs
}
