package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/leptonsf/internal/weights"
)

type producerView struct {
	Name        string   `json:"name"`
	ID          string   `json:"id"`
	Keys        []string `json:"keys"`
	Initialized bool     `json:"initialized"`
	NBinsX      int      `json:"nbins_x,omitempty"`
	NBinsY      int      `json:"nbins_y,omitempty"`
}

// TableView is the JSON form of a producer's loaded table. The collapsed Y
// axis of a graph source is reported with its sentinel edges.
type TableView struct {
	Producer   string      `json:"producer"`
	Table      string      `json:"table"`
	XRole      string      `json:"x_role"`
	Fold       bool        `json:"fold_to_absolute"`
	CollapsedY bool        `json:"collapsed_y"`
	XEdges     []float64   `json:"x_edges"`
	YEdges     []float64   `json:"y_edges"`
	Values     [][]float64 `json:"values"`
}

// TableViewOf describes p's table; ok is false before Init.
func TableViewOf(p *weights.Producer) (TableView, bool) {
	l := p.Lookuper()
	if l == nil {
		return TableView{}, false
	}
	t, m := l.Table(), l.Mapping()
	return TableView{
		Producer:   p.Name(),
		Table:      p.ID(),
		XRole:      m.XRole.String(),
		Fold:       m.FoldToAbsolute,
		CollapsedY: m.CollapsedY,
		XEdges:     t.XEdges(),
		YEdges:     t.YEdges(),
		Values:     t.Values(),
	}, true
}

// GET /producers
func ListProducersHandler(chain *weights.Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []producerView{}
		for _, p := range chain.Producers() {
			v := producerView{Name: p.Name(), ID: p.ID(), Keys: p.Keys(), Initialized: p.Initialized()}
			if l := p.Lookuper(); l != nil {
				v.NBinsX, v.NBinsY = l.Table().NBinsX(), l.Table().NBinsY()
			}
			out = append(out, v)
		}
		writeJSON(w, out)
	}
}

// GET /producers/{name}/table
func ProducerTableHandler(chain *weights.Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(chi.URLParam(r, "name"))
		p, ok := chain.Producer(name)
		if !ok {
			http.Error(w, "unknown producer: "+name, http.StatusNotFound)
			return
		}
		v, ok := TableViewOf(p)
		if !ok {
			http.Error(w, name+": "+weights.ErrNotInitialized.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, v)
	}
}
