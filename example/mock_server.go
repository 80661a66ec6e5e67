package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/clublogbridge/clublog"
)

// mockLog is a growing log: every watch request adds a few QSOs and now and
// then a new entity is worked or confirmed.
type mockLog struct {
	mu     sync.Mutex
	qsos   int
	matrix map[int]map[string]int
}

func (l *mockLog) tick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.qsos += 1 + rand.IntN(20)
	if rand.IntN(3) == 0 {
		entity := 1 + rand.IntN(340)
		if l.matrix[entity] == nil {
			l.matrix[entity] = make(map[string]int)
		}
		l.matrix[entity]["20"] = 1 + rand.IntN(3)
	}
}

// StartMockClubLog runs a mock of the six ClubLog endpoints on addr.
// Call this in a goroutine before creating the coordinator.
func StartMockClubLog(addr string) {
	l := &mockLog{
		qsos: 1000,
		matrix: map[int]map[string]int{
			1:   {"20": 1, "40": 2},
			100: {"20": 3},
			291: {"80": 2},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(clublog.PathDXCCMatrix, func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		defer l.mu.Unlock()
		writeJSON(w, l.matrix)
	})
	mux.HandleFunc(clublog.PathWatch, func(w http.ResponseWriter, r *http.Request) {
		l.tick()
		l.mu.Lock()
		defer l.mu.Unlock()
		writeJSON(w, map[string]any{
			"clublog_user":  1,
			"is_expedition": 0,
			"has_oqrs":      0,
			"clublog_info": map[string]any{
				"total_qsos":  fmt.Sprint(l.qsos),
				"last_upload": time.Now().UTC().Format(time.DateTime),
			},
		})
	})
	mux.HandleFunc(clublog.PathMostWanted, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"1": "237", "2": "4", "3": "246", "4": "199"})
	})
	mux.HandleFunc(clublog.PathExpeditions, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, [][]any{{"3Y0K", time.Now().UTC().Format(time.DateOnly), 45000}})
	})
	mux.HandleFunc(clublog.PathLivestreams, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, [][]any{{"3Y0K", "199", time.Now().UTC().Format(time.DateOnly), "https://example.com/3Y0K"}})
	})
	mux.HandleFunc(clublog.PathActivity, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string][]int{"20m": {3, 8, 12}, "40m": {1}})
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
