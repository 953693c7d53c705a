package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"notesdb/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Backend: the remote store behind the collaborator interfaces
// ─────────────────────────────────────────────────────────────

// Backend is everything the services need from persistent storage.
type Backend interface {
	domain.DataSourceFetcher
	domain.ViewFetcher
	domain.SettingsPersister

	SaveDataSource(ctx context.Context, ds *domain.DataSource) error
	SaveRecord(ctx context.Context, r domain.Record) error
	DeleteRecord(ctx context.Context, id string) error
	SaveView(ctx context.Context, v domain.View) error
	ListViews(ctx context.Context, dataSourceID string) ([]domain.View, error)
	SaveMember(ctx context.Context, m domain.Member) error
	ListMembers(ctx context.Context) ([]domain.Member, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver   string
	DSN      string
	Database string
	Conn     ConnParams
}

// DriverMongo selects the MongoDB backend.
const DriverMongo = "mongodb"

// OpenBackend opens the backend named by opts.Driver. When DSN is empty
// it is built from opts.Conn.
func OpenBackend(ctx context.Context, opts Options, log zerolog.Logger) (Backend, error) {
	log = log.With().Str("component", "storage").Str("driver", opts.Driver).Logger()
	dsn := opts.DSN

	switch opts.Driver {
	case DriverMongo:
		if dsn == "" {
			dsn = BuildMongoURI(opts.Conn)
		}
		log.Info().Str("uri", redact(dsn, opts.Conn.Password)).Msg("connecting")
		return OpenMongo(ctx, dsn, opts.Database)
	case string(DialectMySQL):
		if dsn == "" {
			dsn = BuildMySQLDSN(opts.Conn)
		}
	case string(DialectPostgres):
		if dsn == "" {
			dsn = BuildPostgresDSN(opts.Conn)
		}
	case string(DialectSQLite), "":
		opts.Driver = string(DialectSQLite)
		if dsn == "" {
			return nil, fmt.Errorf("sqlite backend needs a database path")
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", opts.Driver)
	}

	log.Info().Str("dsn", redact(dsn, opts.Conn.Password)).Msg("connecting")
	db, err := Open(Dialect(opts.Driver), dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLBackend(db), nil
}

// SQLBackend composes the SQL stores into a Backend.
type SQLBackend struct {
	*DataSourceStore
	*ViewStore
	*MemberStore
	db *DB
}

// NewSQLBackend wraps db.
func NewSQLBackend(db *DB) *SQLBackend {
	return &SQLBackend{
		DataSourceStore: NewDataSourceStore(db),
		ViewStore:       NewViewStore(db),
		MemberStore:     NewMemberStore(db),
		db:              db,
	}
}

func (b *SQLBackend) Close() error { return b.db.Close() }

var _ Backend = (*SQLBackend)(nil)

// ── Seeding ────────────────────────────────────────────────

// Workspace is a portable dump of data sources, records, views and members.
type Workspace struct {
	DataSources []*domain.DataSource `json:"dataSources"`
	Records     []domain.Record      `json:"records"`
	Views       []domain.View        `json:"views"`
	Members     []domain.Member      `json:"members"`
}

// LoadWorkspace reads a workspace JSON file.
func LoadWorkspace(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	ws := &Workspace{}
	if err := json.Unmarshal(data, ws); err != nil {
		return nil, fmt.Errorf("decode workspace %s: %w", path, err)
	}
	return ws, nil
}

// Seed writes every item of ws into b. Existing ids are overwritten.
func Seed(ctx context.Context, b Backend, ws *Workspace) error {
	for _, ds := range ws.DataSources {
		if err := b.SaveDataSource(ctx, ds); err != nil {
			return fmt.Errorf("save data source %s: %w", ds.ID, err)
		}
	}
	for _, r := range ws.Records {
		if err := b.SaveRecord(ctx, r); err != nil {
			return fmt.Errorf("save record %s: %w", r.ID, err)
		}
	}
	for _, v := range ws.Views {
		if err := b.SaveView(ctx, v); err != nil {
			return fmt.Errorf("save view %s: %w", v.ID, err)
		}
	}
	for _, m := range ws.Members {
		if err := b.SaveMember(ctx, m); err != nil {
			return fmt.Errorf("save member %s: %w", m.ID, err)
		}
	}
	return nil
}
