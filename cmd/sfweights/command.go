package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"code.cloudfoundry.org/lager/v3"

	"github.com/mind-engage/leptonsf/internal/calibio"
	"github.com/mind-engage/leptonsf/internal/db"
	"github.com/mind-engage/leptonsf/internal/logging"
	"github.com/mind-engage/leptonsf/internal/storage"
)

// SFWeightsCommand holds the options shared by every subcommand.
type SFWeightsCommand struct {
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"error" choice:"fatal" description:"Minimum level of log lines written to stderr."`

	CalibrationDir string `long:"calibration-dir" env:"BLOB_BASE_PATH" default:"." description:"Directory relative calibration file locations are resolved against."`
	CalibrationDB  string `long:"calibration-db" env:"DB_DSN" description:"SQLite file served as the db: calibration location."`

	Produce ProduceCommand `command:"produce" description:"Compute scale factor weights for newline-delimited JSON events."`
	Convert ConvertCommand `command:"convert" description:"Convert a JSON or YAML calibration document into a calibration database."`
	Inspect InspectCommand `command:"inspect" description:"Print a calibration table or the objects of a calibration file."`

	logOut io.Writer
}

var SFWeights SFWeightsCommand

func (cmd *SFWeightsCommand) logger(component string) (lager.Logger, error) {
	out := cmd.logOut
	if out == nil {
		out = os.Stderr
	}
	logger, _, err := logging.New(component, cmd.LogLevel, out)
	return logger, err
}

// opener resolves calibration locations for the subcommands. The returned
// close func releases the calibration database, if one was opened.
func (cmd *SFWeightsCommand) opener(ctx context.Context, logger lager.Logger) (*calibio.Opener, func() error, error) {
	bs, err := storage.NewFSStore(cmd.CalibrationDir)
	if err != nil {
		return nil, nil, fmt.Errorf("calibration dir: %w", err)
	}
	o := calibio.NewOpener(logger, bs)
	if cmd.CalibrationDB == "" {
		return o, func() error { return nil }, nil
	}
	dbh, err := db.Open(ctx, db.DriverSQLite, cmd.CalibrationDB)
	if err != nil {
		return nil, nil, fmt.Errorf("calibration db: %w", err)
	}
	o.DB = dbh
	return o, dbh.Close, nil
}
