package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"code.cloudfoundry.org/lager/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mind-engage/leptonsf/internal/config"
	"github.com/mind-engage/leptonsf/internal/event"
	"github.com/mind-engage/leptonsf/internal/metrics"
	"github.com/mind-engage/leptonsf/internal/weights"
)

const maxEventLine = 16 << 20

type ProduceCommand struct {
	Settings string `short:"s" long:"settings" env:"SETTINGS_FILE" description:"YAML producer settings; LEPTON_* variables override it."`
	Input    string `short:"i" long:"input" default:"-" description:"Events file, - for stdin."`
	Output   string `short:"o" long:"output" default:"-" description:"Weights file, - for stdout."`
}

func (cmd *ProduceCommand) Execute(args []string) error {
	in, out := io.Reader(os.Stdin), io.Writer(os.Stdout)
	if cmd.Input != "-" {
		f, err := os.Open(cmd.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	if cmd.Output != "-" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return cmd.run(context.Background(), in, out)
}

func (cmd *ProduceCommand) run(ctx context.Context, in io.Reader, out io.Writer) error {
	logger, err := SFWeights.logger("leptonsf-sfweights")
	if err != nil {
		return err
	}
	logger = logger.Session("produce")

	s, err := config.LoadSettings(cmd.Settings)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		logger.Error("invalid-settings", err)
		return err
	}

	opener, closeDB, err := SFWeights.opener(ctx, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	m := metrics.New(prometheus.NewRegistry())
	chain, err := weights.NewChain(weights.Deps{Logger: logger, Loader: opener, Metrics: m}, s.Producers)
	if err != nil {
		return err
	}
	if err := chain.Init(ctx, s); err != nil {
		logger.Error("failed-to-initialize-producers", err)
		return err
	}

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxEventLine)

	var n, line int
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec event.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		prod, err := rec.Product()
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := chain.Produce(prod); err != nil {
			return fmt.Errorf("line %d: event %d:%d:%d: %w", line, rec.Run, rec.Lumi, rec.Event, err)
		}
		if err := enc.Encode(event.Result{Run: rec.Run, Lumi: rec.Lumi, Event: rec.Event, Weights: prod.Weights}); err != nil {
			return fmt.Errorf("line %d: event %d:%d:%d: %w", line, rec.Run, rec.Lumi, rec.Event, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Info("done", lager.Data{"events": n})
	return nil
}
