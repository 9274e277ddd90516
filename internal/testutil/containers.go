// Package testutil starts the backing services integration and e2e tests
// run against.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/meddocs/internal/database"
)

const (
	pgImage     = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage = "rustfs/rustfs:latest"
	qdrantImage = "qdrant/qdrant:v1.16.2"

	// S3 credentials the RustFS container is started with.
	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"
)

// service is a started container and the host it is reachable on.
type service struct {
	Container testcontainers.Container
	Host      string
}

// Terminate stops and removes the container.
func (s *service) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(s.Container)
}

// start runs req and resolves the mapped host port for each of ports.
func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, ports ...string) (service, map[string]string) {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}

	mapped := make(map[string]string, len(ports))
	for _, p := range ports {
		port, err := container.MappedPort(ctx, nat.Port(p))
		if err != nil {
			t.Fatalf("failed to get %s port %s: %v", req.Image, p, err)
		}
		mapped[p] = port.Port()
	}
	return service{Container: container, Host: host}, mapped
}

// PostgresContainer is Postgres with the pgvector extension available.
type PostgresContainer struct {
	service
	Port     string
	User     string
	Password string
	Database string
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	t.Helper()
	const cred = "meddocs"

	svc, ports := start(ctx, t, testcontainers.ContainerRequest{
		Image:        pgImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     cred,
			"POSTGRES_PASSWORD": cred,
			"POSTGRES_DB":       cred,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")

	return &PostgresContainer{service: svc, Port: ports["5432"], User: cred, Password: cred, Database: cred}
}

func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	service
	Port string
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	t.Helper()

	svc, ports := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")

	return &RustFSContainer{service: svc, Port: ports["9000"]}
}

func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// QdrantContainer exposes Qdrant's gRPC port, the one the Go client speaks.
type QdrantContainer struct {
	service
	GRPCPort int
}

func NewQdrantContainer(ctx context.Context, t *testing.T) *QdrantContainer {
	t.Helper()

	svc, ports := start(ctx, t, testcontainers.ContainerRequest{
		Image:        qdrantImage,
		ExposedPorts: []string{"6333/tcp", "6334/tcp"},
		WaitingFor:   wait.ForListeningPort("6334/tcp").WithStartupTimeout(60 * time.Second),
	}, "6334")

	var grpcPort int
	if _, err := fmt.Sscanf(ports["6334"], "%d", &grpcPort); err != nil {
		t.Fatalf("invalid qdrant port %q: %v", ports["6334"], err)
	}
	return &QdrantContainer{service: svc, GRPCPort: grpcPort}
}

// NewTestPool connects to pc and applies the migrations in migrationsDir
// with the same runner the migrate command uses.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), ConnectAttempts: 5})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if _, err := database.Migrate(pc.ConnectionString(), migrationsDir); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pool
}
