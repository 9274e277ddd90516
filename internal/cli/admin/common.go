package admin

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/cloo-solutions/meddocs/internal/config"
	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/telemetry"
)

const drainInterval = 500 * time.Millisecond

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	titleColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.Faint)
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// initTelemetry starts Sentry when a DSN is configured. Production samples
// 10% of traces, everything else samples all of them.
func initTelemetry(cfg *config.Config) func() {
	if !cfg.HasSentry() {
		return func() {}
	}
	sampleRate := 1.0
	if cfg.Environment == "production" {
		sampleRate = 0.1
	}
	flush, _ := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	})
	return flush
}

// drain runs the job queue in-process until done reports true.
func (a *App) drain(ctx context.Context, done func(ctx context.Context) (bool, error)) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		if err := a.Processor.ProcessJobs(ctx); err != nil {
			return err
		}
		finished, err := done(ctx)
		if err != nil {
			return err
		}
		if finished {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printCitations(w io.Writer, citations []domain.Citation) {
	if len(citations) == 0 {
		return
	}
	titleColor.Fprintln(w, "\nSources")
	for i, c := range citations {
		fmt.Fprintf(w, "  [%d] %s", i+1, c.DocumentID)
		if len(c.Pages) > 0 {
			pages := make([]string, len(c.Pages))
			for j, p := range c.Pages {
				pages[j] = fmt.Sprint(p)
			}
			fmt.Fprintf(w, "  pages %s", strings.Join(pages, ", "))
		}
		if len(c.Sections) > 0 {
			fmt.Fprintf(w, "  sections %s", strings.Join(c.Sections, "; "))
		}
		dimColor.Fprintf(w, "  (%d passages, relevance %.2f)\n", c.PassageCount, c.RelevanceScore)
	}
}
