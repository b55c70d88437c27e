package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/pdok/gpkgload/crs"
	"github.com/pdok/gpkgload/geopackage"
)

const SOURCE string = `source`
const FORMAT string = `format`
const REPROJECT string = `reproject`
const TARGETCRS string = `targetCrs`
const CONFIG string = `config`
const OUTPUT string = `output`
const PRETTY string = `pretty`

//nolint:funlen
func main() {
	// a missing .env is fine
	_ = godotenv.Load(".env")

	app := cli.NewApp()
	app.Name = "gpkgload"
	app.Usage = "Reads the feature tables of a GeoPackage as tables or GeoJSON features"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     SOURCE,
			Aliases:  []string{"s"},
			Usage:    "Source GPKG, a file path or an http(s) URL",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(SOURCE)},
		},
		&cli.StringFlag{
			Name:     FORMAT,
			Aliases:  []string{"f"},
			Usage:    "Output shape: table or geojson",
			Value:    string(geopackage.FormatTable),
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(FORMAT)},
		},
		&cli.BoolFlag{
			Name:     REPROJECT,
			Aliases:  []string{"r"},
			Usage:    "Reproject the geometries to the target crs",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(REPROJECT)},
		},
		&cli.StringFlag{
			Name:     TARGETCRS,
			Aliases:  []string{"t"},
			Usage:    `Target crs of the reprojection. E.g.: WGS84, EPSG:3857 or urn:ogc:def:crs:EPSG::4326`,
			Value:    crs.WGS84.String(),
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(TARGETCRS)},
		},
		&cli.StringFlag{
			Name:     CONFIG,
			Aliases:  []string{"c"},
			Usage:    `JSON options file. E.g.: {"gis": {"format": "geojson", "reproject": true}}. Flags take precedence`,
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.StringFlag{
			Name:     OUTPUT,
			Aliases:  []string{"o"},
			Usage:    "Output JSON file, stdout when empty",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(OUTPUT)},
		},
		&cli.BoolFlag{
			Name:     PRETTY,
			Usage:    "Indent the output JSON",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(PRETTY)},
		},
	}

	app.Action = func(c *cli.Context) error {
		cfg, err := configFromContext(c)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		source := c.String(SOURCE)
		log.Printf("=== start loading %s ===", source)
		result, err := geopackage.Load(ctx, source, cfg)
		if err != nil {
			if errors.Is(err, crs.ErrNoTransform) {
				log.Printf("supported transforms: %s", strings.Join(crs.NewDefaultRegistry().Pairs(), ", "))
			}
			return err
		}
		logSummary(result)

		if err = writeResult(result, c.String(OUTPUT), c.Bool(PRETTY)); err != nil {
			return err
		}
		log.Println("=== done loading ===")
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// configFromContext reads the options file, if any, and lets the flags override it
func configFromContext(c *cli.Context) (geopackage.Config, error) {
	cfg := geopackage.NewConfig()
	if path := c.String(CONFIG); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("error reading options file: %w", err)
		}
		if cfg, err = geopackage.ParseConfig(data); err != nil {
			return cfg, fmt.Errorf("error in options file %s: %w", path, err)
		}
	}
	if c.IsSet(FORMAT) {
		cfg.GIS.Format = geopackage.Format(c.String(FORMAT))
	}
	if c.IsSet(REPROJECT) {
		cfg.GIS.Reproject = c.Bool(REPROJECT)
	}
	if c.IsSet(TARGETCRS) {
		cfg.GIS.TargetCRS = c.String(TARGETCRS)
	}
	return cfg, cfg.Validate()
}

func logSummary(result *geopackage.Result) {
	if result.Format == geopackage.FormatGeoJSON {
		for _, name := range result.Features.Names() {
			log.Printf("  %s: %d features", name, len(result.Features.Features(name)))
		}
		log.Printf("  %d features in total", result.Features.Count())
		return
	}
	for _, table := range result.Tables.Tables {
		log.Printf("  %s: %d rows, %d fields", table.Name, len(table.Table.Data), len(table.Table.Schema.Fields))
	}
}

func writeResult(result *geopackage.Result, output string, pretty bool) (err error) {
	var w io.Writer = os.Stdout
	if output != "" {
		f, createErr := os.Create(output)
		if createErr != nil {
			return fmt.Errorf("could not create output file: %w", createErr)
		}
		defer func() {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}()
		w = f
	}
	encoder := json.NewEncoder(w)
	if pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(result)
}
