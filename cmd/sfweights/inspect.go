package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mind-engage/leptonsf/internal/calib"
	"github.com/mind-engage/leptonsf/internal/calibio"
)

type InspectCommand struct {
	Object    string `short:"n" long:"object" description:"Object to print; all object names are listed when empty."`
	Variation string `long:"variation" default:"nominal" choice:"nominal" choice:"up" choice:"down" description:"Systematic shift to apply."`
	Subtract  bool   `long:"subtract-error" description:"Shift against the error, as for trigger efficiencies."`

	Args struct {
		Location string `positional-arg-name:"location" required:"yes" description:"Calibration file, postgres:// DSN or db:."`
	} `positional-args:"yes"`

	out io.Writer
}

func (cmd *InspectCommand) Execute(args []string) error {
	ctx := context.Background()
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}

	logger, err := SFWeights.logger("leptonsf-sfweights")
	if err != nil {
		return err
	}
	opener, closeDB, err := SFWeights.opener(ctx, logger.Session("inspect"))
	if err != nil {
		return err
	}
	defer closeDB()

	if cmd.Object == "" {
		f, err := opener.Open(ctx, cmd.Args.Location)
		if err != nil {
			return err
		}
		defer f.Close()
		names, err := f.Names(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return nil
	}

	shift := calib.ShiftAdd
	if cmd.Subtract {
		shift = calib.ShiftSubtract
	}
	t, err := opener.Load(ctx, calibio.TableSpec{
		Location:  cmd.Args.Location,
		Object:    cmd.Object,
		Variation: calib.ParseVariation(cmd.Variation),
		Shift:     shift,
	})
	if err != nil {
		return err
	}
	return printTable(out, t)
}

// printTable writes one row per X bin and one column per Y bin.
func printTable(w io.Writer, t *calib.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	x, y := t.XEdges(), t.YEdges()

	header := []string{"x \\ y"}
	for iy := 0; iy < t.NBinsY(); iy++ {
		header = append(header, "["+edge(y[iy])+", "+edge(y[iy+1])+")")
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for ix := 0; ix < t.NBinsX(); ix++ {
		row := []string{"[" + edge(x[ix]) + ", " + edge(x[ix+1]) + ")"}
		for iy := 0; iy < t.NBinsY(); iy++ {
			row = append(row, strconv.FormatFloat(t.Value(ix, iy), 'f', 4, 64))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	return tw.Flush()
}

func edge(v float64) string {
	if v == math.MaxFloat64 {
		return "inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
