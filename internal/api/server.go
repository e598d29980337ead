package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/hypocenter/internal/locate"
	"github.com/banshee-data/hypocenter/internal/refdata"
	"github.com/banshee-data/hypocenter/internal/ttime"
)

// Server is the thin JSON-in/JSON-out HTTP front end over the core
// locator, grounded on the teacher's api.Server (ServeMux,
// per-route handler methods).
type Server struct {
	Oracle  ttime.Oracle
	Cratons *refdata.Cratons
	Zones   *refdata.ZoneStatistics
}

// NewServer builds a Server bound to the given travel-time oracle and
// reference data (either of which may be nil: a nil Cratons disables
// the tectonic reclassification, a nil Zones disables the
// zone-statistics Bayesian depth prior).
func NewServer(oracle ttime.Oracle, cratons *refdata.Cratons, zones *refdata.ZoneStatistics) *Server {
	return &Server{Oracle: oracle, Cratons: cratons, Zones: zones}
}

// ServeMux builds the Server's route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/locate", s.locateHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("hypocenter location service\n"))
}

func (s *Server) locateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("bad request body: %v", err)})
		return
	}
	if len(req.Picks) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "event has no picks"})
		return
	}

	resp, err := s.Locate(req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Locate builds an Event from the request, runs the locator, and
// translates the result back into the response payload. It is
// exported separately from locateHandler so cmd/locate can drive the
// same path without going through HTTP.
func (s *Server) Locate(req EventRequest) (*EventResponse, error) {
	event, err := BuildEvent(req, s.Oracle, s.Cratons, s.Zones)
	if err != nil {
		return nil, err
	}

	result, err := locate.RunLocator(event)
	if err != nil {
		return nil, err
	}

	return ToResponse(event, result), nil
}
