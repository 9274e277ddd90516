//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/meddocs/internal/api/handlers"
	"github.com/cloo-solutions/meddocs/internal/api/middleware"
	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/extract"
	"github.com/cloo-solutions/meddocs/internal/jobs"
	"github.com/cloo-solutions/meddocs/internal/repository"
	"github.com/cloo-solutions/meddocs/internal/server"
	"github.com/cloo-solutions/meddocs/internal/service"
	"github.com/cloo-solutions/meddocs/internal/storage"
	"github.com/cloo-solutions/meddocs/internal/testutil"
)

const (
	apiToken     = "e2e-token"
	embeddingDim = 128
	pollTimeout  = 30 * time.Second
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	S3Client     *storage.S3Client
	Generator    *cannedGenerator
	ServerURL    string
	ServerCloser func()
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres and RustFS, wires the full service graph with a
// deterministic embedder and generator, and serves it on a free port.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          "meddocs-e2e",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		Generator:  &cannedGenerator{reply: "The discharge summary lists metformin 500 mg twice daily."},
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)
	return env
}

// Cleanup releases the server, pool and containers
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		_ = e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
}

func (e *E2ETestEnv) startServer(port int) (string, func()) {
	documentRepo := repository.NewDocumentRepository(e.Pool)
	reportRepo := repository.NewReportRepository(e.Pool)
	jobRepo := repository.NewProcessingJobRepository(e.Pool)
	txRunner := repository.NewTxRunner(e.Pool)

	index := service.NewIndex(repository.NewPassageStore(e.Pool), hashEmbedder{})
	retriever := service.NewRetriever(index)
	locker := service.NewKeyedMutex()

	docs := service.NewDocumentService(
		documentRepo, repository.NewChunkRepository(e.Pool), e.S3Client, extract.New(),
		service.NewChunker(service.DefaultChunkConfig()), index, locker, txRunner,
		service.DocumentServiceConfig{MaxUploadBytes: 5 << 20},
	)
	synthesizer := service.NewSectionSynthesizer(retriever, e.Generator, service.SectionConfig{TopK: 10, MinSimilarity: 0.05, Concurrency: 2})
	reports := service.NewReportService(reportRepo, documentRepo, e.S3Client, synthesizer, locker, txRunner)
	answerer := service.NewAnswerer(retriever, e.Generator, service.AnswerConfig{TopK: 5, MinSimilarity: 0.05, HistoryTurns: 6})
	chat := service.NewChatService(repository.NewConversationRepository(e.Pool), answerer, txRunner, service.ChatConfig{HistoryTurns: 6})

	processor := jobs.NewProcessingWorker(jobRepo, map[domain.JobKind]jobs.JobHandler{
		domain.JobKindDocument: docs,
		domain.JobKindReport:   reports,
	}, jobs.WorkerConfig{Concurrency: 2})
	worker := jobs.NewWorker(processor, 200*time.Millisecond)
	docs.WithNotifier(worker)
	reports.WithNotifier(worker)

	workerCtx, stopWorker := context.WithCancel(e.Ctx)
	go worker.Start(workerCtx)

	router := server.NewRouter(server.RouterConfig{
		APIToken:        apiToken,
		MaxBodyBytes:    6 << 20,
		RateLimiter:     middleware.NewIPRateLimiter(100, 100),
		DocumentHandler: handlers.NewDocumentHandler(docs),
		ChatHandler:     handlers.NewChatHandler(chat, retriever, handlers.SearchDefaults{K: 5, MinSimilarity: 0.05}),
		ReportHandler:   handlers.NewReportHandler(reports),
		DriveHandler:    handlers.NewDriveHandler(nil, docs),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		worker.Stop()
		stopWorker()
	}
}

// APIResponse is a decoded response envelope
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Raw        []byte
}

// Decode unmarshals the data field into v
func (r *APIResponse) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, "")
}

func (e *E2ETestEnv) Post(path string, body any) (*APIResponse, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	return e.doRequest(http.MethodPost, path, &buf, "application/json")
}

func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, "")
}

// Upload posts a multipart document upload
func (e *E2ETestEnv) Upload(filename string, content []byte, metadata map[string]any) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		if err := mw.WriteField("metadata", string(raw)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return e.doRequest(http.MethodPost, "/documents", &buf, mw.FormDataContentType())
}

func (e *E2ETestEnv) doRequest(method, path string, body io.Reader, contentType string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	out := &APIResponse{StatusCode: resp.StatusCode, Raw: raw}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("failed to decode response %q: %w", raw, err)
		}
	}
	return out, nil
}

// WaitForStatus polls a resource until its status is terminal.
func (e *E2ETestEnv) WaitForStatus(path string) map[string]any {
	e.T.Helper()
	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		resp, err := e.Get(path)
		if err != nil {
			e.T.Fatalf("poll %s: %v", path, err)
		}
		var body map[string]any
		if err := resp.Decode(&body); err != nil {
			e.T.Fatalf("decode %s: %v", path, err)
		}
		if s, _ := body["status"].(string); domain.ProcessingStatus(s).Terminal() {
			return body
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("%s did not finish within %v", path, pollTimeout)
	return nil
}

// hashEmbedder maps text to a normalized bag of hashed tokens so that texts
// sharing words are close under cosine distance.
type hashEmbedder struct{}

func (hashEmbedder) ModelName() string { return "hash-bow" }

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, embeddingDim)
		for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[h.Sum32()%embeddingDim]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range vec {
				vec[j] *= scale
			}
		} else {
			vec[0] = 1
		}
		out[i] = vec
	}
	return out, nil
}

// cannedGenerator returns a fixed reply and counts its calls
type cannedGenerator struct {
	reply string
	calls atomic.Int64
}

func (g *cannedGenerator) Generate(_ context.Context, _ []domain.ChatMessage) (string, error) {
	g.calls.Add(1)
	return g.reply, nil
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
