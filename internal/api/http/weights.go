package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"code.cloudfoundry.org/lager/v3"

	"github.com/mind-engage/leptonsf/internal/event"
	"github.com/mind-engage/leptonsf/internal/weights"
)

const maxEventsPerRequest = 10000

var maxWeightsBody int64 = 32 << 20

type weightsReq struct {
	Events []event.Record `json:"events"`
}

type weightsResp struct {
	Results []event.Result `json:"results"`
}

// POST /weights  { "events": [ {run, lumi, event, z_valid, leptons}, ... ] }
func WeightsHandler(chain *weights.Chain, logger lager.Logger) http.HandlerFunc {
	logger = logger.Session("weights")
	return func(w http.ResponseWriter, r *http.Request) {
		var req weightsReq
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWeightsBody)).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Events) > maxEventsPerRequest {
			http.Error(w, "too many events", http.StatusRequestEntityTooLarge)
			return
		}

		resp := weightsResp{Results: make([]event.Result, 0, len(req.Events))}
		for _, rec := range req.Events {
			prod, err := rec.Product()
			if err != nil {
				http.Error(w, "bad event: "+err.Error(), http.StatusBadRequest)
				return
			}
			if err := chain.Produce(prod); err != nil {
				logger.Error("failed-to-produce", err, lager.Data{"run": rec.Run, "lumi": rec.Lumi, "event": rec.Event})
				code := http.StatusInternalServerError
				switch {
				case errors.Is(err, weights.ErrNotInitialized):
					code = http.StatusServiceUnavailable
				case errors.Is(err, weights.ErrNonFiniteWeight):
					code = http.StatusUnprocessableEntity
				}
				http.Error(w, "produce: "+err.Error(), code)
				return
			}
			resp.Results = append(resp.Results, event.Result{
				Run:     rec.Run,
				Lumi:    rec.Lumi,
				Event:   rec.Event,
				Weights: prod.Weights,
			})
		}

		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(resp); err != nil {
			logger.Error("failed-to-encode", err, lager.Data{"events": len(resp.Results)})
			http.Error(w, "encode: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
