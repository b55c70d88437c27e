package geopackage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	// registers the "sqlite3" database/sql driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdok/gpkgload/processing"
)

const sqliteHeaderSize = 100

var sqliteMagic = []byte("SQLite format 3\x00")

// application_id values of GeoPackage 1.0, 1.1 and 1.2+. Zero is accepted for
// files written by tools that do not set it.
var gpkgApplicationIDs = map[uint32]struct{}{
	0x47503130: {}, // GP10
	0x47503131: {}, // GP11
	0x47504B47: {}, // GPKG
	0:          {},
}

// Container is a GeoPackage opened read-only. It must be closed to release the
// SQL engine handle and, for spooled input, the temporary file.
type Container struct {
	source  string
	db      *sql.DB
	spooled string
}

// OpenFile opens the GeoPackage at path in place.
func OpenFile(ctx context.Context, path string, cfg Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return open(ctx, path, path, "", cfg)
}

// OpenBytes opens a GeoPackage held in memory. The bytes are spooled to a
// temporary file, since the SQL engine works on files.
func OpenBytes(ctx context.Context, data []byte, cfg Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return openBytes(ctx, "<bytes>", data, cfg)
}

// OpenURL fetches a GeoPackage over http(s) and opens it.
func OpenURL(ctx context.Context, rawURL string, cfg Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data, err := fetch(ctx, rawURL, cfg.GeoPackage.FetchRetries)
	if err != nil {
		return nil, &OpenError{Source: rawURL, Err: err}
	}
	return openBytes(ctx, rawURL, data, cfg)
}

func openBytes(ctx context.Context, source string, data []byte, cfg Config) (*Container, error) {
	// checked before spooling, no need to write what can not be opened
	if err := checkHeader(bytes.NewReader(data)); err != nil {
		return nil, &OpenError{Source: source, Err: err}
	}
	spooled, err := spool(data, cfg.GeoPackage.TempDir)
	if err != nil {
		return nil, &OpenError{Source: source, Err: err}
	}
	return open(ctx, source, spooled, spooled, cfg)
}

func open(ctx context.Context, source, path, spooled string, cfg Config) (c *Container, err error) {
	defer func() {
		if err != nil {
			if spooled != "" {
				_ = os.Remove(spooled)
			}
			err = &OpenError{Source: source, Err: err}
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	err = checkHeader(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.GeoPackage.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if err = checkMetadataTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Container{source: source, db: db, spooled: spooled}, nil
}

// Close releases the SQL engine handle and removes a spooled file.
func (c *Container) Close() error {
	err := c.db.Close()
	if c.spooled != "" {
		if rmErr := os.Remove(c.spooled); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	return err
}

// Tables lists the feature tables in the order they are declared.
func (c *Container) Tables(ctx context.Context) ([]TableInfo, error) {
	return getTableInfo(ctx, c.db)
}

// ReadRows reads all rows of a feature table in native order, passing every geometry through f.
func (c *Container) ReadRows(ctx context.Context, table TableInfo, f processing.ProcessGeometryFunc) ([]*Row, error) {
	target := &processing.Collector{}
	if err := processing.ProcessFeatures(ctx, tableSource{db: c.db, table: table}, target, f); err != nil {
		return nil, err
	}
	rows := make([]*Row, len(target.Features))
	for i, feature := range target.Features {
		rows[i] = feature.(*Row)
	}
	return rows, nil
}

// checkHeader reads the SQLite file header and checks the magic string and application_id
func checkHeader(r io.Reader) error {
	header := make([]byte, sqliteHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%w: file too short for a SQLite header", ErrNotGeoPackage)
	}
	if !bytes.Equal(header[:len(sqliteMagic)], sqliteMagic) {
		return fmt.Errorf("%w: no SQLite header", ErrNotGeoPackage)
	}
	applicationID := binary.BigEndian.Uint32(header[68:72])
	if _, ok := gpkgApplicationIDs[applicationID]; !ok {
		return fmt.Errorf("%w: unexpected application_id 0x%08X", ErrNotGeoPackage, applicationID)
	}
	return nil
}

func checkMetadataTables(ctx context.Context, db *sql.DB) error {
	var n int
	query := `SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name IN ('gpkg_contents', 'gpkg_geometry_columns', 'gpkg_spatial_ref_sys');`
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("%w: missing GeoPackage metadata tables", ErrNotGeoPackage)
	}
	return nil
}

// readOnlyDSN builds a SQLite URI filename opening path read-only
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

func spool(data []byte, dir string) (path string, err error) {
	f, err := os.CreateTemp(dir, "gpkgload-*.gpkg")
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	_, err = f.Write(data)
	return f.Name(), err
}
