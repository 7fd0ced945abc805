package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodyledger/core/state"
	"custodyledger/crypto"
	"custodyledger/native/lottery"
	"custodyledger/native/sweeper"
)

type entryResponse struct {
	Address      string `json:"address"`
	AddressHex   string `json:"addressHex"`
	User         string `json:"user"`
	TokenAccount string `json:"tokenAccount"`
	Timestamp    int64  `json:"timestamp"`
	Balance      string `json:"balance"`
}

type sweepStatus struct {
	mu       sync.Mutex
	lastRun  time.Time
	report   *sweeper.SweepReport
	lastErr  error
	disabled bool
}

func (s *sweepStatus) record(report *sweeper.SweepReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Now().UTC()
	s.report = report
	s.lastErr = err
}

type sweepResponse struct {
	Disabled  bool     `json:"disabled"`
	LastRun   string   `json:"lastRun,omitempty"`
	Scanned   int      `json:"scanned"`
	Reclaimed []string `json:"reclaimed"`
	Failed    int      `json:"failed"`
	Error     string   `json:"error,omitempty"`
}

func (s *sweepStatus) snapshot() sweepResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := sweepResponse{Disabled: s.disabled, Reclaimed: []string{}}
	if !s.lastRun.IsZero() {
		out.LastRun = s.lastRun.Format(time.RFC3339)
	}
	if s.report != nil {
		out.Scanned = s.report.Scanned
		out.Failed = len(s.report.Failed)
		for _, addr := range s.report.Reclaimed {
			out.Reclaimed = append(out.Reclaimed, addr.String())
		}
	}
	if s.lastErr != nil {
		out.Error = s.lastErr.Error()
	}
	return out
}

func newRouter(manager *state.Manager, engine *lottery.Engine, status *sweepStatus) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/entries/{user}", func(w http.ResponseWriter, r *http.Request) {
		user, err := crypto.DecodeAddress(chi.URLParam(r, "user"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var resp entryResponse
		err = manager.View(func(tx *state.Tx) error {
			entry, addr, err := engine.Entry(tx, user)
			if err != nil {
				return err
			}
			bal, err := tx.Balance(addr)
			if err != nil {
				return err
			}
			resp = entryResponse{
				Address:      addr.String(),
				AddressHex:   addr.Hex(),
				User:         entry.User.String(),
				TokenAccount: entry.TokenAccount.String(),
				Timestamp:    entry.Timestamp,
				Balance:      bal.Dec(),
			}
			return nil
		})
		switch {
		case errors.Is(err, lottery.ErrRecordNotFound), errors.Is(err, lottery.ErrNotLiveEntry):
			writeError(w, http.StatusNotFound, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, resp)
		}
	})
	r.Get("/v1/sweeps/last", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, status.snapshot())
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
