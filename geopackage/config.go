package geopackage

import (
	"fmt"
	"sort"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"

	"github.com/pdok/gpkgload/crs"
)

// Format selects the output shape of a load.
type Format string

const (
	FormatTable   Format = "table"
	FormatGeoJSON Format = "geojson"
)

// Config holds the recognised load options. Use NewConfig or ParseConfig to get the defaults.
type Config struct {
	GeoPackage GeoPackageConfig `json:"geopackage"`
	GIS        GISConfig        `json:"gis"`

	// Registry resolves the reprojection transforms, defaults to crs.NewDefaultRegistry()
	Registry *crs.Registry `json:"-" validate:"-"`
}

// GeoPackageConfig configures the container opener.
type GeoPackageConfig struct {
	// Name of the database/sql driver used as SQL engine
	Driver string `json:"driver,omitempty" default:"sqlite3" validate:"required"`
	// Alternate location of the sql.js engine runtime of the browser loader. Accepted for
	// compatibility of option files, the engine is linked in here.
	SQLJsCDN string `json:"sqlJsCDN,omitempty" validate:"omitempty,url"`
	// Directory to spool fetched or in-memory GeoPackages to, os.TempDir() when empty
	TempDir string `json:"tempDir,omitempty" validate:"omitempty,dir"`
	// Transport level retries when fetching a GeoPackage over http(s)
	FetchRetries int `json:"fetchRetries" default:"2" validate:"min=0,max=10"`
}

// GISConfig configures the output shape and reprojection.
type GISConfig struct {
	Format    Format `json:"format,omitempty" default:"table" validate:"oneof=table geojson"`
	Reproject bool   `json:"reproject"`
	// Identifier of the target crs, only used when Reproject is set
	TargetCRS string `json:"targetCrs,omitempty" default:"WGS84" validate:"required"`
}

// NewConfig returns a Config with all defaults set.
func NewConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// ParseConfig reads a JSON options document, e.g.
//
//	{"geopackage": {"driver": "sqlite3"}, "gis": {"format": "geojson", "reproject": true, "targetCrs": "WGS84"}}
//
// Missing options get their defaults, unknown options are an error.
func ParseConfig(data []byte) (Config, error) {
	cfg := NewConfig()
	var known struct{}
	sections, err := marshmallow.Unmarshal(data, &known)
	if err != nil {
		return cfg, err
	}

	var unknown []string
	for name, rawSection := range sections {
		var target interface{}
		switch name {
		case "geopackage":
			target = &cfg.GeoPackage
		case "gis":
			target = &cfg.GIS
		default:
			unknown = append(unknown, name)
			continue
		}
		section, ok := rawSection.(map[string]interface{})
		if !ok {
			return cfg, fmt.Errorf(`option %q should be an object, not %T`, name, rawSection)
		}
		specials, err := marshmallow.UnmarshalFromJSONMap(section, target, marshmallow.WithExcludeKnownFieldsFromMap(true))
		if err != nil {
			return cfg, fmt.Errorf(`option %q: %w`, name, err)
		}
		if name == "gis" {
			// marshmallow type checks "format" but cannot assign a string to the named type
			if format, ok := section["format"].(string); ok {
				cfg.GIS.Format = Format(format)
			}
			// "_targetCrs" is the experimental spelling of gis.targetCrs
			if rawTargetCrs, ok := specials["_targetCrs"]; ok {
				if cfg.GIS.TargetCRS, ok = rawTargetCrs.(string); !ok {
					return cfg, fmt.Errorf(`option "gis._targetCrs" should be a string, not %T`, rawTargetCrs)
				}
				delete(specials, "_targetCrs")
			}
		}
		for key := range specials {
			unknown = append(unknown, name+"."+key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return cfg, fmt.Errorf("unknown options: %v", unknown)
	}
	return cfg, cfg.Validate()
}

// Validate checks the options, including whether the target crs can be resolved.
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.GIS.Reproject {
		if _, err := c.GIS.target(); err != nil {
			return err
		}
	}
	return nil
}

// target resolves the target crs, an unrecognised one is a ReprojectionError
func (c GISConfig) target() (crs.Identifier, error) {
	id, err := crs.Parse(c.TargetCRS)
	if err != nil {
		return id, &ReprojectionError{Source: "-", Target: c.TargetCRS, Err: err}
	}
	return id, nil
}

func (c Config) registry() *crs.Registry {
	if c.Registry != nil {
		return c.Registry
	}
	return crs.NewDefaultRegistry()
}
