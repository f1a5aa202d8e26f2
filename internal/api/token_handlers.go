package api

import (
	"net/http"
	"sort"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api/presenter"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/service"
)

// handleTokenStates lists the lifecycle state of every known token, optionally for one
// carrier (?carrier=). Only fingerprints leave the process, never token values.
func (s *Server) handleTokenStates(w http.ResponseWriter, r *http.Request) {
	carrier := r.URL.Query().Get("carrier")

	states := make([]service.ScopeStatus, 0)
	found := carrier == ""
	for _, reporter := range s.tokens {
		if carrier != "" && reporter.Carrier() != carrier {
			continue
		}
		found = true
		states = append(states, reporter.Status(r.Context())...)
	}
	if !found {
		presenter.Error(w, r, "unknown carrier: "+carrier, http.StatusNotFound)
		return
	}

	sort.SliceStable(states, func(i, j int) bool {
		if states[i].Carrier != states[j].Carrier {
			return states[i].Carrier < states[j].Carrier
		}
		return states[i].Scope < states[j].Scope
	})
	presenter.JSON(w, r, states, http.StatusOK)
}
