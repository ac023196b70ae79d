package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver.
	_ "modernc.org/sqlite"             // registers the "sqlite" driver.
)

// SQL driver names.
const (
	sqliteDriver   = "sqlite"
	postgresDriver = "pgx"
)

// sqlitePragmas are set through the DSN so every pooled connection gets
// them. busy_timeout keeps concurrent writers from failing with SQLITE_BUSY.
var sqlitePragmas = []string{
	"busy_timeout(10000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqlDialect holds the statements that differ between drivers.
type sqlDialect struct {
	schema string
	get    string
	create string
}

var sqliteDialect = sqlDialect{
	schema: `CREATE TABLE IF NOT EXISTS designmap_cache (
		key        TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	get:    `SELECT data FROM designmap_cache WHERE key = ?`,
	create: `INSERT INTO designmap_cache (key, data) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`,
}

var postgresDialect = sqlDialect{
	schema: `CREATE TABLE IF NOT EXISTS designmap_cache (
		key        TEXT PRIMARY KEY,
		data       BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	get:    `SELECT data FROM designmap_cache WHERE key = $1`,
	create: `INSERT INTO designmap_cache (key, data) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
}

// SQLStore keeps entries in a single table of a database/sql database. The
// primary key and ON CONFLICT DO NOTHING give first-writer-wins across
// processes sharing the database.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// OpenSQLite opens (creating if needed) an SQLite cache database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open(sqliteDriver, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	return newSQLStore(ctx, db, sqliteDialect)
}

// sqliteDSN appends the connection pragmas to path.
func sqliteDSN(path string) string {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}

	var dsn strings.Builder

	dsn.WriteString(path)

	for _, pragma := range sqlitePragmas {
		dsn.WriteString(separator + "_pragma=" + pragma)
		separator = "&"
	}

	return dsn.String()
}

// OpenPostgres connects to a PostgreSQL cache database through the pgx driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open(postgresDriver, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres cache: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("ping postgres cache: %w", err)
	}

	return newSQLStore(ctx, db, postgresDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect sqlDialect) (*SQLStore, error) {
	_, err := db.ExecContext(ctx, dialect.schema)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &SQLStore{db: db, dialect: dialect}, nil
}

// Get implements Store.
func (store *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	err := store.db.QueryRowContext(ctx, store.dialect.get, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}

	return data, nil
}

// Create implements Store.
func (store *SQLStore) Create(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	res, err := store.db.ExecContext(ctx, store.dialect.create, key, data)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}

	if affected == 0 {
		return ErrExists
	}

	return nil
}

// Close implements Store.
func (store *SQLStore) Close() error {
	return store.db.Close()
}
