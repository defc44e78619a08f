package calibio

import (
	"fmt"
	"strings"

	"go-hep.org/x/hep/hbook"

	"github.com/mind-engage/leptonsf/internal/calib"
)

// Kind is the type of a named object in a calibration file.
type Kind string

const (
	KindHist2D Kind = "TH2F"
	KindGraph  Kind = "TGraphAsymmErrors"
)

// normalize accepts the histogram class names found in calibration files.
func (k Kind) normalize() (Kind, error) {
	switch strings.ToLower(string(k)) {
	case "th2f", "th2d", "hist2d":
		return KindHist2D, nil
	case "tgraphasymmerrors", "graph":
		return KindGraph, nil
	default:
		return "", fmt.Errorf("unsupported object kind %q", k)
	}
}

// Document is a calibration file in text form: objects addressed by name.
type Document struct {
	Objects map[string]Object `json:"objects" yaml:"objects"`
}

// Object is either a 2-D grid (edges, content, errors indexed [ix][iy]) or a
// list of points with asymmetric errors.
type Object struct {
	Kind    Kind        `json:"kind" yaml:"kind"`
	XEdges  []float64   `json:"x_edges,omitempty" yaml:"x_edges,omitempty"`
	YEdges  []float64   `json:"y_edges,omitempty" yaml:"y_edges,omitempty"`
	Content [][]float64 `json:"content,omitempty" yaml:"content,omitempty"`
	Errors  [][]float64 `json:"errors,omitempty" yaml:"errors,omitempty"`
	Points  []Point     `json:"points,omitempty" yaml:"points,omitempty"`
}

type Point struct {
	X   float64 `json:"x" yaml:"x"`
	EXL float64 `json:"exl" yaml:"exl"`
	EXH float64 `json:"exh" yaml:"exh"`
	Y   float64 `json:"y" yaml:"y"`
	EYL float64 `json:"eyl" yaml:"eyl"`
	EYH float64 `json:"eyh" yaml:"eyh"`
}

// Table converts the object with the given variation applied.
func (o Object) Table(v calib.Variation, s calib.Shift) (*calib.Table, error) {
	kind, err := o.Kind.normalize()
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindHist2D:
		h, err := calib.NewHist2D(o.XEdges, o.YEdges, o.Content, o.Errors)
		if err != nil {
			return nil, err
		}
		return calib.FromGrid(h, v, s)
	default:
		return calib.FromPoints(o.Graph(), v, s)
	}
}

func (o Object) Graph() *calib.Graph {
	pts := make([]hbook.Point2D, 0, len(o.Points))
	for _, p := range o.Points {
		pts = append(pts, hbook.Point2D{
			X:    p.X,
			Y:    p.Y,
			ErrX: hbook.Range{Min: p.EXL, Max: p.EXH},
			ErrY: hbook.Range{Min: p.EYL, Max: p.EYH},
		})
	}
	return calib.NewGraph(pts...)
}
