package admin

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

// StatsCmd returns the stats command
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index and document statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Documents.Stats(ctx)
			if err != nil {
				return err
			}
			jobCounts, err := app.Jobs.CountByStatus(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			titleColor.Fprintln(out, "Index")
			fmt.Fprintf(out, "  name       %s\n", stats.Index.IndexName)
			fmt.Fprintf(out, "  model      %s\n", stats.Index.EmbeddingModel)
			fmt.Fprintf(out, "  passages   %d\n", stats.Index.TotalPassages)

			titleColor.Fprintln(out, "Documents")
			for _, s := range []domain.ProcessingStatus{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed} {
				fmt.Fprintf(out, "  %-10s %d\n", s, stats.Documents[s])
			}

			titleColor.Fprintln(out, "Jobs")
			statuses := make([]string, 0, len(jobCounts))
			for s := range jobCounts {
				statuses = append(statuses, string(s))
			}
			slices.Sort(statuses)
			for _, s := range statuses {
				fmt.Fprintf(out, "  %-10s %d\n", s, jobCounts[domain.JobStatus(s)])
			}
			return nil
		},
	}
}
