package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a calibration database and ensures its schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	db, err := Connect(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Connect opens and pings a database without touching its schema, for
// calibration files opened read-only.
func Connect(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:calibration.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/leptonsf?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS calib_objects (
  name TEXT PRIMARY KEY,
  kind TEXT NOT NULL,                        -- TH2F | TGraphAsymmErrors
  x_edges_json TEXT NOT NULL DEFAULT '[]',
  y_edges_json TEXT NOT NULL DEFAULT '[]',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS calib_cells (
  object TEXT NOT NULL REFERENCES calib_objects(name) ON DELETE CASCADE,
  ix INTEGER NOT NULL,                       -- 1-based, like the histogram bins
  iy INTEGER NOT NULL,
  content REAL NOT NULL,
  error REAL NOT NULL DEFAULT 0,
  PRIMARY KEY (object, ix, iy)
);

CREATE TABLE IF NOT EXISTS calib_points (
  object TEXT NOT NULL REFERENCES calib_objects(name) ON DELETE CASCADE,
  idx INTEGER NOT NULL,
  x REAL NOT NULL,
  exl REAL NOT NULL DEFAULT 0,
  exh REAL NOT NULL DEFAULT 0,
  y REAL NOT NULL,
  eyl REAL NOT NULL DEFAULT 0,
  eyh REAL NOT NULL DEFAULT 0,
  PRIMARY KEY (object, idx)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS calib_objects (
  name TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  x_edges_json TEXT NOT NULL DEFAULT '[]',
  y_edges_json TEXT NOT NULL DEFAULT '[]',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS calib_cells (
  object TEXT NOT NULL REFERENCES calib_objects(name) ON DELETE CASCADE,
  ix INTEGER NOT NULL,
  iy INTEGER NOT NULL,
  content DOUBLE PRECISION NOT NULL,
  error DOUBLE PRECISION NOT NULL DEFAULT 0,
  PRIMARY KEY (object, ix, iy)
);

CREATE TABLE IF NOT EXISTS calib_points (
  object TEXT NOT NULL REFERENCES calib_objects(name) ON DELETE CASCADE,
  idx INTEGER NOT NULL,
  x DOUBLE PRECISION NOT NULL,
  exl DOUBLE PRECISION NOT NULL DEFAULT 0,
  exh DOUBLE PRECISION NOT NULL DEFAULT 0,
  y DOUBLE PRECISION NOT NULL,
  eyl DOUBLE PRECISION NOT NULL DEFAULT 0,
  eyh DOUBLE PRECISION NOT NULL DEFAULT 0,
  PRIMARY KEY (object, idx)
);
`
