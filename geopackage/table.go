package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-spatial/geom/encoding/gpkg"

	"github.com/pdok/gpkgload/crs"
)

type column struct {
	cid       int
	name      string
	ctype     string
	notnull   int
	dfltValue *string
	pk        int
}

// TableInfo describes a feature table as declared in the GeoPackage metadata tables.
type TableInfo struct {
	Name             string
	GeometryColumn   string
	GeometryTypeName string
	SRS              gpkg.SpatialReferenceSystem
	columns          []column
}

// Schema returns the declared columns of the table as fields, geometry column included.
func (t TableInfo) Schema() Schema {
	fields := make([]Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = Field{Name: c.name, Type: t.fieldType(c), Nullable: c.notnull == 0 && c.pk == 0}
	}
	metadata := map[string]string{
		MetadataGeometryColumn: t.GeometryColumn,
		MetadataGeometryType:   t.GeometryTypeName,
	}
	if id, err := crs.FromSRS(t.SRS); err == nil {
		metadata[MetadataCRS] = id.String()
	}
	return Schema{Fields: fields, Metadata: metadata}
}

func (t TableInfo) fieldType(c column) FieldType {
	if c.name == t.GeometryColumn {
		return FieldTypeGeometry
	}
	return fieldTypeFromDeclared(c.ctype)
}

// fieldTypeFromDeclared maps a declared column type to a semantic type. The
// GeoPackage data types are matched first, the SQLite affinity rules are the fallback.
func fieldTypeFromDeclared(ctype string) FieldType {
	t := strings.ToUpper(strings.TrimSpace(ctype))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "BOOLEAN":
		return FieldTypeBoolean
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER":
		return FieldTypeInteger
	case "FLOAT", "DOUBLE", "REAL":
		return FieldTypeReal
	case "TEXT", "DATE", "DATETIME":
		return FieldTypeText
	case "BLOB":
		return FieldTypeBlob
	case "GEOMETRY", "POINT", "LINESTRING", "POLYGON", "MULTIPOINT", "MULTILINESTRING", "MULTIPOLYGON", "GEOMETRYCOLLECTION":
		return FieldTypeGeometry
	}

	switch {
	case strings.Contains(t, "INT"):
		return FieldTypeInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return FieldTypeText
	case t == "", strings.Contains(t, "BLOB"):
		return FieldTypeBlob
	default:
		return FieldTypeReal
	}
}

// primaryKey returns the name of the single column primary key, empty if there is none
func (t TableInfo) primaryKey() string {
	var pk string
	for _, c := range t.columns {
		if c.pk == 1 {
			pk = c.name
		} else if c.pk > 1 {
			return ""
		}
	}
	return pk
}

// selectSQL builds the SELECT statement reading the rows in their native order
func (t TableInfo) selectSQL() string {
	return `SELECT * FROM ` + quoteIdentifier(t.Name) + `;`
}

// checkColumns compares the columns of a result set with the declared ones
func (t TableInfo) checkColumns(cols []string) error {
	if len(cols) != len(t.columns) {
		return fmt.Errorf("declared %d columns, table has %d", len(t.columns), len(cols))
	}
	for i, c := range t.columns {
		if cols[i] != c.name {
			return fmt.Errorf("declared column %d as %q, table has %q", i, c.name, cols[i])
		}
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// getTableInfo lists the feature tables in the order gpkg_contents stores them
func getTableInfo(ctx context.Context, db *sql.DB) ([]TableInfo, error) {
	query := `SELECT g.table_name, g.column_name, g.geometry_type_name, g.srs_id
FROM gpkg_contents c JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
WHERE c.data_type = 'features'
ORDER BY c.rowid;`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error reading gpkg_geometry_columns: %w", err)
	}
	defer rows.Close()

	type declared struct {
		TableInfo
		srsID int
	}
	var found []declared
	for rows.Next() {
		var d declared
		if err = rows.Scan(&d.Name, &d.GeometryColumn, &d.GeometryTypeName, &d.srsID); err != nil {
			return nil, fmt.Errorf("error reading the feature table information: %w", err)
		}
		found = append(found, d)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	// rows are drained before the next queries, the handle may have a single connection
	rows.Close()

	tables := make([]TableInfo, 0, len(found))
	for _, d := range found {
		t := d.TableInfo
		if t.columns, err = getTableColumns(ctx, db, t.Name); err != nil {
			return nil, err
		}
		if t.SRS, err = getSpatialReferenceSystem(ctx, db, d.srsID); err != nil {
			return nil, &SchemaError{Table: t.Name, Err: err}
		}
		if err = t.validate(); err != nil {
			return nil, &SchemaError{Table: t.Name, Err: err}
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (t TableInfo) validate() error {
	if len(t.columns) == 0 {
		return errors.New("table does not exist or has no columns")
	}
	for _, c := range t.columns {
		if c.name == t.GeometryColumn {
			return nil
		}
	}
	return fmt.Errorf("geometry column %q is not a column of the table", t.GeometryColumn)
}

// getSpatialReferenceSystem extracts this based on the given SRS id
func getSpatialReferenceSystem(ctx context.Context, db *sql.DB, id int) (gpkg.SpatialReferenceSystem, error) {
	var srs gpkg.SpatialReferenceSystem
	query := `SELECT srs_name, srs_id, organization, organization_coordsys_id, definition, description FROM gpkg_spatial_ref_sys WHERE srs_id = ?;`

	var description *string
	err := db.QueryRowContext(ctx, query, id).Scan(&srs.Name, &srs.ID, &srs.Organization, &srs.OrganizationCoordsysID, &srs.Definition, &description)
	if errors.Is(err, sql.ErrNoRows) {
		return srs, fmt.Errorf("srs_id %d is not in gpkg_spatial_ref_sys", id)
	}
	if err != nil {
		return srs, fmt.Errorf("error reading srs_id %d: %w", id, err)
	}
	if description != nil {
		srs.Description = *description
	}
	return srs, nil
}

// getTableColumns collects the column information of a given table
func getTableColumns(ctx context.Context, db *sql.DB, table string) ([]column, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(`+quoteIdentifier(table)+`);`)
	if err != nil {
		return nil, fmt.Errorf("error reading the columns of %q: %w", table, err)
	}
	defer rows.Close()

	var columns []column
	for rows.Next() {
		var c column
		if err = rows.Scan(&c.cid, &c.name, &c.ctype, &c.notnull, &c.dfltValue, &c.pk); err != nil {
			return nil, fmt.Errorf("error getting the column information of %q: %w", table, err)
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}
