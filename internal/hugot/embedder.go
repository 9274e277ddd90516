// Package hugot runs a sentence-transformer locally through the hugot ONNX
// pipeline. The model is downloaded into the model directory on first use.
package hugot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/cloo-solutions/meddocs/internal/logger"
)

const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

type Config struct {
	Model     string
	ModelDir  string
	BatchSize int
}

// Embedder loads the pipeline lazily; construction never touches the network.
// A failed load is retried on the next call, only a loaded pipeline is kept.
type Embedder struct {
	cfg Config

	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	download func(model, dir string, opts hugot.DownloadOptions) (string, error)

	log *logger.Logger
}

func NewEmbedder(cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Embedder{cfg: cfg, download: hugot.DownloadModel, log: logger.New("hugot")}
}

func (e *Embedder) ModelName() string {
	return e.cfg.Model
}

// ModelPath is where the model for name is stored under dir.
func ModelPath(dir, name string) string {
	return filepath.Join(dir, strings.ReplaceAll(name, "/", "_"))
}

// load must be called with e.mu held.
func (e *Embedder) load() error {
	if e.pipeline != nil {
		return nil
	}

	path, err := e.prepareModel()
	if err != nil {
		return err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return fmt.Errorf("failed to create hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: path,
		Name:      "meddocs-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return fmt.Errorf("failed to create embedding pipeline: %w", err)
	}
	e.session = session
	e.pipeline = pipeline
	e.log.Info("embedding model loaded", "model", e.cfg.Model, "path", path)
	return nil
}

// prepareModel returns the local model path, downloading it first if needed.
// Downloads land in a staging directory and are renamed into place, so an
// interrupted download never leaves a directory at the model path.
func (e *Embedder) prepareModel() (string, error) {
	path := ModelPath(e.cfg.ModelDir, e.cfg.Model)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(e.cfg.ModelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	staging, err := os.MkdirTemp(e.cfg.ModelDir, ".download-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	e.log.Info("downloading embedding model", "model", e.cfg.Model, "dir", e.cfg.ModelDir)
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := e.download(e.cfg.Model, staging, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	if err := os.Rename(downloaded, path); err != nil {
		return "", fmt.Errorf("failed to move model into place: %w", err)
	}
	return path, nil
}

// Embed runs the pipeline in batches. Calls are serialized since the Go
// backend session is not safe for concurrent use.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.load(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.cfg.BatchSize, len(texts))
		result, err := e.pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}
		if len(result.Embeddings) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(result.Embeddings))
		}
		out = append(out, result.Embeddings...)
	}
	return out, nil
}

func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session, e.pipeline = nil, nil
	return err
}
