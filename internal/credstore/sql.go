package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// DefaultTable holds one row per provider.
const DefaultTable = "credential_records"

// dialect captures the SQL differences between supported databases.
type dialect struct {
	driver string
	quote  func(string) string
	bind   func(n int) string
	upsert string // ON CONFLICT clause appended to the insert
}

var dialects = map[string]dialect{
	"postgres": {
		driver: "postgres",
		quote:  pq.QuoteIdentifier,
		bind:   func(n int) string { return fmt.Sprintf("$%d", n) },
		upsert: "ON CONFLICT (provider) DO UPDATE SET kind = EXCLUDED.kind, ciphertext = EXCLUDED.ciphertext, " +
			"iv = EXCLUDED.iv, auth_tag = EXCLUDED.auth_tag, salt = EXCLUDED.salt, created_at = EXCLUDED.created_at",
	},
	"mysql": {
		driver: "mysql",
		quote:  func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		bind:   func(int) string { return "?" },
		upsert: "ON DUPLICATE KEY UPDATE kind = VALUES(kind), ciphertext = VALUES(ciphertext), " +
			"iv = VALUES(iv), auth_tag = VALUES(auth_tag), salt = VALUES(salt), created_at = VALUES(created_at)",
	},
}

var driverAliases = map[string]string{
	"postgresql": "postgres",
	"postgres":   "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

// SQL stores records in a relational table.
type SQL struct {
	db      *sql.DB
	dialect dialect
	table   string
}

// OpenSQL connects using cfg and optionally creates the table when
// create_table is set.
func OpenSQL(ctx context.Context, cfg config.StoreConfig) (*SQL, error) {
	driver := cfg.String("driver", cfg.Type)
	name, ok := driverAliases[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	d := dialects[name]

	dsn := cfg.String("dsn", "")
	if dsn == "" {
		dsn = buildDSN(name, cfg)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, dserrors.StoreError("sql", "open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, dserrors.StoreError("sql", "connect", err)
	}

	s := NewSQL(db, name, cfg.String("table", DefaultTable))
	if cfg.Bool("create_table") {
		if err := s.CreateTable(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewSQL wraps an open database. dialectName is postgres or mysql.
func NewSQL(db *sql.DB, dialectName, table string) *SQL {
	d, ok := dialects[driverAliases[dialectName]]
	if !ok {
		d = dialects["postgres"]
	}
	if table == "" {
		table = DefaultTable
	}
	return &SQL{db: db, dialect: d, table: table}
}

func buildDSN(dialectName string, cfg config.StoreConfig) string {
	if dialectName == "mysql" {
		mc := mysql.NewConfig()
		mc.User = cfg.String("username", "")
		mc.Passwd = cfg.String("password", "")
		mc.Net = "tcp"
		mc.Addr = cfg.String("host", "localhost") + ":" + cfg.String("port", "3306")
		mc.DBName = cfg.String("database", "finlink")
		mc.ParseTime = true
		return mc.FormatDSN()
	}

	parts := []string{
		"host=" + cfg.String("host", "localhost"),
		"port=" + cfg.String("port", "5432"),
		"dbname=" + cfg.String("database", "finlink"),
		"user=" + cfg.String("username", ""),
		"sslmode=" + cfg.String("sslmode", "require"),
	}
	if password := cfg.String("password", ""); password != "" {
		parts = append(parts, "password="+password)
	}
	return strings.Join(parts, " ")
}

// CreateTable creates the records table if it does not exist.
func (s *SQL) CreateTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	provider VARCHAR(32) PRIMARY KEY,
	kind VARCHAR(32) NOT NULL,
	ciphertext TEXT NOT NULL,
	iv VARCHAR(64) NOT NULL,
	auth_tag VARCHAR(64) NOT NULL,
	salt VARCHAR(64) NOT NULL,
	created_at TIMESTAMP NOT NULL
)`, s.dialect.quote(s.table))

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return dserrors.StoreError("sql", "create table", err)
	}
	return nil
}

func (s *SQL) Put(ctx context.Context, key connector.ProviderKey, rec vault.Record) error {
	b := s.dialect.bind
	query := fmt.Sprintf(
		"INSERT INTO %s (provider, kind, ciphertext, iv, auth_tag, salt, created_at) VALUES (%s, %s, %s, %s, %s, %s, %s) %s",
		s.dialect.quote(s.table), b(1), b(2), b(3), b(4), b(5), b(6), b(7), s.dialect.upsert,
	)

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		string(key), string(rec.Kind), rec.Ciphertext, rec.IV, rec.AuthTag, rec.Salt, createdAt)
	if err != nil {
		return dserrors.StoreError("sql", "put", err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, key connector.ProviderKey) (vault.Record, error) {
	query := fmt.Sprintf(
		"SELECT kind, ciphertext, iv, auth_tag, salt, created_at FROM %s WHERE provider = %s",
		s.dialect.quote(s.table), s.dialect.bind(1),
	)

	rec := vault.Record{Provider: key}
	var kind string
	err := s.db.QueryRowContext(ctx, query, string(key)).
		Scan(&kind, &rec.Ciphertext, &rec.IV, &rec.AuthTag, &rec.Salt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Record{}, ErrNotFound
	}
	if err != nil {
		return vault.Record{}, dserrors.StoreError("sql", "get", err)
	}
	rec.Kind = connector.Kind(kind)
	return rec, nil
}

func (s *SQL) Delete(ctx context.Context, key connector.ProviderKey) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE provider = %s", s.dialect.quote(s.table), s.dialect.bind(1))
	if _, err := s.db.ExecContext(ctx, query, string(key)); err != nil {
		return dserrors.StoreError("sql", "delete", err)
	}
	return nil
}

func (s *SQL) List(ctx context.Context) ([]connector.ProviderKey, error) {
	query := fmt.Sprintf("SELECT provider FROM %s ORDER BY provider", s.dialect.quote(s.table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, dserrors.StoreError("sql", "list", err)
	}
	defer rows.Close()

	var keys []connector.ProviderKey
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dserrors.StoreError("sql", "list", err)
		}
		keys = append(keys, connector.ProviderKey(name))
	}
	if err := rows.Err(); err != nil {
		return nil, dserrors.StoreError("sql", "list", err)
	}
	return keys, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
