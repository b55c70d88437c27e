package geopackage

import (
	"errors"
	"fmt"
)

var (
	ErrNotGeoPackage = errors.New("not a GeoPackage")
	ErrOutOfDomain   = errors.New("coordinate outside the target crs domain")
)

// OpenError means the container could not be fetched, is not a valid
// GeoPackage or the SQL engine could not be initialised.
type OpenError struct {
	Source string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("error opening GeoPackage %s: %v", e.Source, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// SchemaError means the declared metadata and the actual table disagree.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in table %q: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// DecodeError means a geometry payload could not be decoded.
type DecodeError struct {
	Table string
	// FID is the primary key of the row, nil when the table has none
	FID interface{}
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error decoding the geometry of table %q, fid %v: %v", e.Table, e.FID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ReprojectionError means the source or target crs is not supported or a
// reprojected coordinate ended up outside the target domain.
type ReprojectionError struct {
	Table  string
	Source string
	Target string
	Err    error
}

func (e *ReprojectionError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("error reprojecting to %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("error reprojecting table %q from %s to %s: %v", e.Table, e.Source, e.Target, e.Err)
}

func (e *ReprojectionError) Unwrap() error {
	return e.Err
}
