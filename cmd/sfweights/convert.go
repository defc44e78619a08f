package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.cloudfoundry.org/lager/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/mind-engage/leptonsf/internal/calibio"
	"github.com/mind-engage/leptonsf/internal/db"
)

type ConvertCommand struct {
	Output   string `short:"o" long:"output" description:"SQLite calibration file to write."`
	Postgres string `long:"postgres" env:"CALIBRATION_POSTGRES_DSN" description:"Publish into this postgres database instead of a file."`

	Args struct {
		Input string `positional-arg-name:"document" required:"yes" description:"JSON or YAML calibration document, optionally .zst compressed."`
	} `positional-args:"yes"`
}

func (cmd *ConvertCommand) Execute(args []string) error {
	ctx := context.Background()
	if (cmd.Output == "") == (cmd.Postgres == "") {
		return errors.New("exactly one of --output and --postgres is required")
	}

	logger, err := SFWeights.logger("leptonsf-sfweights")
	if err != nil {
		return err
	}
	logger = logger.Session("convert", lager.Data{"input": cmd.Args.Input})

	doc, err := readDocument(cmd.Args.Input)
	if err != nil {
		return err
	}

	if cmd.Postgres != "" {
		dbh, err := db.Open(ctx, db.DriverPostgres, cmd.Postgres)
		if err != nil {
			return err
		}
		defer dbh.Close()
		if err := calibio.WriteDB(ctx, dbh, doc); err != nil {
			return err
		}
	} else if err := calibio.WriteSQLiteFile(ctx, cmd.Output, doc); err != nil {
		return err
	}
	logger.Info("written", lager.Data{"objects": len(doc.Objects), "output": cmd.Output})
	return nil
}

func readDocument(path string) (calibio.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return calibio.Document{}, err
	}
	name := path
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return calibio.Document{}, err
		}
		defer dec.Close()
		if b, err = dec.DecodeAll(b, nil); err != nil {
			return calibio.Document{}, fmt.Errorf("zstd %s: %w", path, err)
		}
		name = strings.TrimSuffix(name, ".zst")
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return calibio.Document{}, fmt.Errorf("unsupported document format %q", ext)
	}
	doc, err := calibio.DecodeDocument(ext, b)
	if err != nil {
		return calibio.Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}
