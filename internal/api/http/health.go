package http

import (
	"net/http"

	"github.com/mind-engage/leptonsf/internal/weights"
)

func Healthz(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) }

// Readyz reports ready once every producer of the chain has its table.
func Readyz(chain *weights.Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		for _, p := range chain.Producers() {
			if !p.Initialized() {
				http.Error(w, p.Name()+" not initialized", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ready"))
	}
}
