package telemetry

import (
	"database/sql"
	"net/url"
	"strings"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens an instrumented Postgres pool whose connections all use the
// given schema. An empty schema keeps the server default.
func OpenDB(dsn, schema string) (*sql.DB, error) {
	db, err := otelsql.Open("postgres", WithSearchPath(dsn, schema),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, err
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemPostgreSQL)); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// WithSearchPath adds search_path to a lib/pq DSN, in URL or key=value form.
// lib/pq sends unknown settings to the server as run-time parameters, so it
// applies to every pooled connection.
func WithSearchPath(dsn, schema string) string {
	if schema == "" {
		return dsn
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String()
	}

	return strings.TrimSpace(dsn + " search_path=" + schema)
}
