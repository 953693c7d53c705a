package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnParams describes a server connection when no DSN is given.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// BuildMySQLDSN constructs a go-sql-driver DSN.
func BuildMySQLDSN(p ConnParams) string {
	port := p.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		p.User, p.Password, p.Host, port, p.Database,
	)
	if p.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

// BuildPostgresDSN constructs a lib/pq key/value connection string.
func BuildPostgresDSN(p ConnParams) string {
	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, port, p.User, p.Password, p.Database, sslMode,
	)
}

// BuildMongoURI returns a mongodb:// URI. A host that already is a full
// URI is used as is, with Atlas password placeholders filled in.
func BuildMongoURI(p ConnParams) string {
	if strings.HasPrefix(p.Host, "mongodb+srv://") || strings.HasPrefix(p.Host, "mongodb://") {
		uri := p.Host
		if p.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", p.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", p.Password)
		}
		return uri
	}
	port := p.Port
	if port == 0 {
		port = 27017
	}
	if p.User == "" {
		return fmt.Sprintf("mongodb://%s:%d", p.Host, port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d",
		url.QueryEscape(p.User), url.QueryEscape(p.Password), p.Host, port)
}

// MongoDatabase extracts the database name from a URI path, falling back
// to def.
func MongoDatabase(uri, def string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		if strings.HasPrefix(rest, prefix) {
			rest = rest[len(prefix):]
			break
		}
	}
	// user:pass@host/DB_NAME?params
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash != -1 {
		name := rest[slash+1:]
		if q := strings.Index(name, "?"); q != -1 {
			name = name[:q]
		}
		if name != "" {
			return name
		}
	}
	return def
}

// redact masks the password of a DSN for logging.
func redact(dsn, password string) string {
	if password == "" {
		return dsn
	}
	return strings.ReplaceAll(dsn, password, "***")
}
