package calibio

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"code.cloudfoundry.org/lager/v3"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/zstd"

	"github.com/mind-engage/leptonsf/internal/calib"
	"github.com/mind-engage/leptonsf/internal/db"
	"github.com/mind-engage/leptonsf/internal/storage"
)

// LocationDB addresses the calibration database the opener was given.
const LocationDB = "db:"

// TableSpec names one calibration object and how to load it.
type TableSpec struct {
	Location  string // blob key or path, a postgres:// DSN or LocationDB
	Object    string
	Variation calib.Variation
	Shift     calib.Shift
}

// Opener resolves calibration file locations. Plain locations are read from
// the blob store and decoded by extension (.json, .yaml/.yml, .db/.sqlite,
// each optionally .zst compressed); postgres:// locations are databases and
// LocationDB is the shared DB.
type Opener struct {
	Blobs   storage.BlobStore
	DB      *sql.DB
	TempDir string
	Logger  lager.Logger
}

func NewOpener(logger lager.Logger, blobs storage.BlobStore) *Opener {
	return &Opener{Blobs: blobs, Logger: logger}
}

// Load opens spec.Location, converts the named object and releases the file
// before returning. A missing object yields ErrObjectNotFound.
func (o *Opener) Load(ctx context.Context, spec TableSpec) (*calib.Table, error) {
	logger := o.logger().Session("load-table", lager.Data{
		"location":  spec.Location,
		"object":    spec.Object,
		"variation": spec.Variation.String(),
	})
	logger.Info("start")
	defer logger.Info("done")

	f, err := o.Open(ctx, spec.Location)
	if err != nil {
		logger.Error("failed-to-open", err)
		return nil, err
	}
	defer f.Close()

	obj, err := f.Get(ctx, spec.Object)
	if err != nil {
		logger.Error("failed-to-get-object", err)
		return nil, err
	}
	t, err := obj.Table(spec.Variation, spec.Shift)
	if err != nil {
		logger.Error("failed-to-build-table", err)
		return nil, fmt.Errorf("object %q in %s: %w", spec.Object, spec.Location, err)
	}
	logger.Debug("loaded", lager.Data{"nx": t.NBinsX(), "ny": t.NBinsY(), "kind": obj.Kind})
	return t, nil
}

func (o *Opener) logger() lager.Logger {
	if o.Logger == nil {
		return lager.NewLogger("calibio")
	}
	return o.Logger
}

// Open returns the calibration file at location. Callers must Close it.
func (o *Opener) Open(ctx context.Context, location string) (File, error) {
	if location == LocationDB {
		if o.DB == nil {
			return nil, errors.New("no calibration database configured")
		}
		return &dbFile{location: "calibration database", db: o.DB, shared: true}, nil
	}
	if isPostgres(location) {
		dbh, err := db.Connect(ctx, db.DriverPostgres, location)
		if err != nil {
			return nil, fmt.Errorf("open calibration database: %w", err)
		}
		return &dbFile{location: "postgres", db: dbh}, nil
	}
	if o.Blobs == nil {
		return nil, fmt.Errorf("no blob store to read %s", location)
	}

	rc, err := o.Blobs.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open calibration file: %w", err)
	}
	defer rc.Close()

	name := location
	var r io.Reader = rc
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("zstd %s: %w", location, err)
		}
		defer dec.Close()
		r = dec
		name = strings.TrimSuffix(name, ".zst")
	}

	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".json", ".yaml", ".yml":
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", location, err)
		}
		doc, err := DecodeDocument(ext, b)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", location, err)
		}
		return &docFile{location: location, doc: doc}, nil
	case ".db", ".sqlite", ".sqlite3":
		return o.openSQLite(ctx, location, r)
	default:
		return nil, fmt.Errorf("unsupported calibration file format %q (%s)", ext, location)
	}
}

// openSQLite copies the blob to a temp file, since sqlite needs a path, and
// opens it read-only. Close removes the copy.
func (o *Opener) openSQLite(ctx context.Context, location string, r io.Reader) (File, error) {
	tmp, err := os.CreateTemp(o.TempDir, "calib-*.db")
	if err != nil {
		return nil, err
	}
	cleanup := removeFile(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		cleanup()
		return nil, fmt.Errorf("copy %s: %w", location, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, err
	}
	dbh, err := db.Connect(ctx, db.DriverSQLite, "file:"+tmp.Name()+"?mode=ro")
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	return &dbFile{location: location, db: dbh, cleanup: cleanup}, nil
}

// DecodeDocument parses a JSON or YAML calibration document; ext selects the
// syntax. Unknown keys are rejected in both.
func DecodeDocument(ext string, b []byte) (Document, error) {
	var doc Document
	var err error
	switch ext {
	case ".yaml", ".yml":
		err = yaml.UnmarshalWithOptions(b, &doc, yaml.Strict())
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	}
	if err != nil {
		return Document{}, err
	}
	if doc.Objects == nil {
		doc.Objects = map[string]Object{}
	}
	return doc, nil
}

func isPostgres(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}
