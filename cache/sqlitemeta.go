package cache

import (
	"database/sql"
	"net/url"

	_ "modernc.org/sqlite" // register the sqlite driver
)

// sqliteMetaStore backs metaStore with a single shared SQLite table,
// used by NewShared for deployments running many channel caches
// against one cache directory. Grounded on rpm/sqlite's file-DSN +
// query-param pragma idiom for opening modernc.org/sqlite databases.
type sqliteMetaStore struct {
	db *sql.DB
}

func openSQLiteMetaStore(path string) (*sqliteMetaStore, error) {
	u := url.URL{
		Scheme: "file",
		Opaque: path,
		RawQuery: url.Values{
			"_pragma": {"journal_mode(WAL)", "busy_timeout(5000)"},
		}.Encode(),
	}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	const schema = `CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		etag TEXT NOT NULL DEFAULT '',
		last_modified TEXT NOT NULL DEFAULT ''
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteMetaStore{db: db}, nil
}

func (s *sqliteMetaStore) Load(key string) meta {
	var m meta
	row := s.db.QueryRow(`SELECT etag, last_modified FROM cache_meta WHERE key = ?`, key)
	if err := row.Scan(&m.ETag, &m.LastModified); err != nil {
		return meta{}
	}
	return m
}

func (s *sqliteMetaStore) Save(key string, m meta) error {
	const upsert = `INSERT INTO cache_meta (key, etag, last_modified) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET etag = excluded.etag, last_modified = excluded.last_modified`
	_, err := s.db.Exec(upsert, key, m.ETag, m.LastModified)
	return err
}

// Close releases the underlying database handle.
func (s *sqliteMetaStore) Close() error {
	return s.db.Close()
}
