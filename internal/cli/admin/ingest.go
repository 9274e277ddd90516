package admin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/service"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload and index documents",
		Long: `Upload one or more files and process them in this process.
Each file is stored, extracted, chunked and indexed before the command returns,
unless --no-wait is given, in which case the jobs are left for a running server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().StringToString("meta", nil, "Metadata attached to every file (key=value,...)")
	cmd.Flags().Bool("no-wait", false, "Queue the files without processing them")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer initTelemetry(cfg)()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	meta, _ := cmd.Flags().GetStringToString("meta")
	out := cmd.OutOrStdout()

	var queued []*domain.Document
	var failed int
	for _, path := range args {
		doc, err := uploadFile(ctx, app.Documents, path, meta)
		if err != nil {
			failColor.Fprint(out, "✗ ")
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}
		dimColor.Fprintf(out, "queued %s as %s\n", path, doc.ID)
		queued = append(queued, doc)
	}

	if noWait, _ := cmd.Flags().GetBool("no-wait"); noWait || len(queued) == 0 {
		return ingestResult(failed)
	}

	err = app.drain(ctx, func(ctx context.Context) (bool, error) {
		for i, doc := range queued {
			if doc.Status.Terminal() {
				continue
			}
			current, err := app.Documents.Get(ctx, doc.ID)
			if err != nil {
				return false, err
			}
			queued[i] = current
			if !current.Status.Terminal() {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	for _, doc := range queued {
		if doc.Status == domain.StatusCompleted {
			okColor.Fprint(out, "✓ ")
			fmt.Fprintf(out, "%s  %d chunks\n", doc.OriginalFilename, doc.ChunkCount)
			continue
		}
		failColor.Fprint(out, "✗ ")
		fmt.Fprintf(out, "%s  %s\n", doc.OriginalFilename, doc.Error)
		failed++
	}
	return ingestResult(failed)
}

func uploadFile(ctx context.Context, docs *service.DocumentService, path string, meta map[string]string) (*domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	metadata := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		metadata[strings.TrimSpace(k)] = v
	}
	metadata["source_path"] = path

	return docs.Upload(ctx, service.UploadInput{
		Filename: filepath.Base(path),
		Body:     f,
		Metadata: metadata,
	})
}

func ingestResult(failed int) error {
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}
