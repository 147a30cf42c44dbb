package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens the session database and applies Schema.
//
// `dsn` is either a local sqlite path, ":memory:" or a remote libsql url
// (libsql://, https://, wss://) which is served through the libsql client.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, wrapOpenDB(fmt.Errorf("a database path was not specified"))
	}

	driver := "sqlite"
	if isRemote(dsn) {
		driver = "libsql"
	} else if dsn != ":memory:" {
		err := os.MkdirAll(filepath.Dir(dsn), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	if driver == "sqlite" {
		// sqlite only tolerates a single writer, serializing through one connection
		// avoids SQLITE_BUSY under concurrent requests.
		database.SetMaxOpenConns(1)
		if dsn != ":memory:" {
			_, err = database.ExecContext(ctx, "PRAGMA journal_mode=WAL")
			if err != nil {
				database.Close()
				return nil, wrapOpenDB(err)
			}
		}
	}

	_, err = database.ExecContext(ctx, Schema)
	if err != nil {
		database.Close()
		return nil, wrapOpenDB(fmt.Errorf("apply schema: %w", err))
	}

	return database, nil
}

func isRemote(dsn string) bool {
	for _, prefix := range []string{"libsql://", "https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(dsn, prefix) {
			return true
		}
	}
	return false
}
