package calibio

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mind-engage/leptonsf/internal/db"
)

// ErrObjectNotFound is returned when a calibration file has no object of the
// requested name.
var ErrObjectNotFound = errors.New("calibration object not found")

// File is an opened calibration file.
type File interface {
	Get(ctx context.Context, name string) (Object, error)
	Names(ctx context.Context) ([]string, error)
	Close() error
}

type docFile struct {
	location string
	doc      Document
}

func (f *docFile) Get(_ context.Context, name string) (Object, error) {
	o, ok := f.doc.Objects[name]
	if !ok {
		return Object{}, fmt.Errorf("%w: %q in %s", ErrObjectNotFound, name, f.location)
	}
	return o, nil
}

func (f *docFile) Names(context.Context) ([]string, error) {
	names := make([]string, 0, len(f.doc.Objects))
	for n := range f.doc.Objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *docFile) Close() error { return nil }

// dbFile reads objects from the calib_* tables of a sqlite file or a
// postgres database.
type dbFile struct {
	location string
	db       *sql.DB
	cleanup  func() error
	shared   bool // owned by the caller, left open on Close
}

func (f *dbFile) Get(ctx context.Context, name string) (Object, error) {
	var (
		o            Object
		xJSON, yJSON string
	)
	err := f.db.QueryRowContext(ctx,
		`SELECT kind, x_edges_json, y_edges_json FROM calib_objects WHERE name = $1`, name).
		Scan(&o.Kind, &xJSON, &yJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Object{}, fmt.Errorf("%w: %q in %s", ErrObjectNotFound, name, f.location)
	}
	if err != nil {
		return Object{}, fmt.Errorf("read object %q: %w", name, err)
	}
	kind, err := o.Kind.normalize()
	if err != nil {
		return Object{}, fmt.Errorf("object %q: %w", name, err)
	}
	o.Kind = kind

	if kind == KindGraph {
		o.Points, err = f.points(ctx, name)
		return o, err
	}
	if err := json.Unmarshal([]byte(xJSON), &o.XEdges); err != nil {
		return Object{}, fmt.Errorf("object %q x edges: %w", name, err)
	}
	if err := json.Unmarshal([]byte(yJSON), &o.YEdges); err != nil {
		return Object{}, fmt.Errorf("object %q y edges: %w", name, err)
	}
	o.Content, o.Errors, err = f.cells(ctx, name, len(o.XEdges)-1, len(o.YEdges)-1)
	return o, err
}

func (f *dbFile) cells(ctx context.Context, name string, nx, ny int) ([][]float64, [][]float64, error) {
	if nx < 1 || ny < 1 {
		return nil, nil, fmt.Errorf("object %q: no bins", name)
	}
	content := make([][]float64, nx)
	errs := make([][]float64, nx)
	for i := range content {
		content[i] = make([]float64, ny)
		errs[i] = make([]float64, ny)
	}

	rows, err := f.db.QueryContext(ctx,
		`SELECT ix, iy, content, error FROM calib_cells WHERE object = $1`, name)
	if err != nil {
		return nil, nil, fmt.Errorf("read cells of %q: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ix, iy int
			c, e   float64
		)
		if err := rows.Scan(&ix, &iy, &c, &e); err != nil {
			return nil, nil, err
		}
		if ix < 1 || ix > nx || iy < 1 || iy > ny {
			return nil, nil, fmt.Errorf("object %q: cell (%d,%d) outside %dx%d grid", name, ix, iy, nx, ny)
		}
		content[ix-1][iy-1] = c
		errs[ix-1][iy-1] = e
	}
	return content, errs, rows.Err()
}

func (f *dbFile) points(ctx context.Context, name string) ([]Point, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT x, exl, exh, y, eyl, eyh FROM calib_points WHERE object = $1 ORDER BY idx`, name)
	if err != nil {
		return nil, fmt.Errorf("read points of %q: %w", name, err)
	}
	defer rows.Close()
	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.X, &p.EXL, &p.EXH, &p.Y, &p.EYL, &p.EYH); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (f *dbFile) Names(ctx context.Context) ([]string, error) {
	rows, err := f.db.QueryContext(ctx, `SELECT name FROM calib_objects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (f *dbFile) Close() error {
	if f.shared {
		return nil
	}
	err := f.db.Close()
	if f.cleanup != nil {
		if cerr := f.cleanup(); err == nil {
			err = cerr
		}
	}
	return err
}

// WriteDB stores every object of doc in a calibration database, replacing
// objects of the same name.
func WriteDB(ctx context.Context, dbh *sql.DB, doc Document) error {
	tx, err := dbh.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	names := make([]string, 0, len(doc.Objects))
	for n := range doc.Objects {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeObject(ctx, tx, name, doc.Objects[name]); err != nil {
			return fmt.Errorf("write object %q: %w", name, err)
		}
	}
	return tx.Commit()
}

func writeObject(ctx context.Context, tx *sql.Tx, name string, o Object) error {
	kind, err := o.Kind.normalize()
	if err != nil {
		return err
	}
	xJSON, _ := json.Marshal(nonNil(o.XEdges))
	yJSON, _ := json.Marshal(nonNil(o.YEdges))

	for _, q := range []string{
		`DELETE FROM calib_cells WHERE object = $1`,
		`DELETE FROM calib_points WHERE object = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO calib_objects (name, kind, x_edges_json, y_edges_json, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET
  kind = excluded.kind,
  x_edges_json = excluded.x_edges_json,
  y_edges_json = excluded.y_edges_json,
  created_at = excluded.created_at`,
		name, string(kind), string(xJSON), string(yJSON), time.Now().Unix()); err != nil {
		return err
	}

	if kind == KindGraph {
		for i, p := range o.Points {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO calib_points (object, idx, x, exl, exh, y, eyl, eyh) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				name, i, p.X, p.EXL, p.EXH, p.Y, p.EYL, p.EYH); err != nil {
				return err
			}
		}
		return nil
	}
	for ix, row := range o.Content {
		for iy, c := range row {
			var e float64
			if ix < len(o.Errors) && iy < len(o.Errors[ix]) {
				e = o.Errors[ix][iy]
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO calib_cells (object, ix, iy, content, error) VALUES ($1,$2,$3,$4,$5)`,
				name, ix+1, iy+1, c, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

// WriteSQLiteFile writes doc into a new or existing sqlite calibration file.
func WriteSQLiteFile(ctx context.Context, path string, doc Document) error {
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:"+path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer dbh.Close()
	return WriteDB(ctx, dbh, doc)
}

func removeFile(path string) func() error {
	return func() error { return os.Remove(path) }
}
