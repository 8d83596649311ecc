package test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/segmentio/kafka-go"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joao-fontenele/storefront-pricing/internal/telemetry"
)

// Postgres is one migrated database holding every service schema. Each
// service gets its own pool scoped to its schema through Schema.
type Postgres struct {
	ConnStr string

	container *postgres.PostgresContainer
	mu        sync.Mutex
	pools     []*sql.DB
}

func StartPostgres(ctx context.Context, t *testing.T) *Postgres {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := migrateUp(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &Postgres{ConnStr: connStr, container: container}
}

// Schema opens a pool that resolves unqualified tables in schema, the same
// way the services connect. Pools are closed by Cleanup.
func (p *Postgres) Schema(ctx context.Context, t *testing.T, schema string) *sql.DB {
	t.Helper()

	db, err := telemetry.OpenDB(p.ConnStr, schema)
	if err != nil {
		t.Fatalf("failed to open %s pool: %v", schema, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("failed to ping %s schema: %v", schema, err)
	}

	p.mu.Lock()
	p.pools = append(p.pools, db)
	p.mu.Unlock()
	return db
}

func (p *Postgres) Cleanup() {
	p.mu.Lock()
	for _, db := range p.pools {
		_ = db.Close()
	}
	p.pools = nil
	p.mu.Unlock()

	if err := p.container.Terminate(context.Background()); err != nil {
		fmt.Printf("failed to terminate postgres container: %v\n", err)
	}
}

func migrateUp(connStr string) error {
	m, err := migrate.New(migrationsSource(), connStr)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func migrationsSource() string {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filename))
	return "file://" + filepath.Join(projectRoot, "migrations")
}

type Kafka struct {
	Brokers []string

	container *tckafka.KafkaContainer
}

// StartKafka runs a single-node broker and creates topics up front so the
// first publish does not race topic auto-creation.
func StartKafka(ctx context.Context, t *testing.T, topics ...string) *Kafka {
	t.Helper()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		tckafka.WithClusterID("storefront-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	k := &Kafka{Brokers: brokers, container: container}
	if err := k.createTopics(ctx, topics...); err != nil {
		k.Cleanup()
		t.Fatalf("failed to create topics: %v", err)
	}
	return k
}

func (k *Kafka) createTopics(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	conn, err := kafka.DialContext(ctx, "tcp", k.Brokers[0])
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	broker, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	controller, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(broker.Host, strconv.Itoa(broker.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer func() { _ = controller.Close() }()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	return controller.CreateTopics(configs...)
}

func (k *Kafka) Cleanup() {
	if err := k.container.Terminate(context.Background()); err != nil {
		fmt.Printf("failed to terminate kafka container: %v\n", err)
	}
}
