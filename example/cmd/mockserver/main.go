// Standalone mock of the ClubLog API for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	CLUBLOG_BASE_URL=http://localhost:9999 go run ./cmd/clublog-bridge fetch
//
// Faults can be injected while the bridge is running:
//
//	curl 'localhost:9999/_fault?status=403'                  # every endpoint
//	curl 'localhost:9999/_fault?path=/watch.php&status=500'  # one endpoint
//	curl 'localhost:9999/_fault?status=0'                    # clear all
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
)

var bodies = map[string]string{
	"/json_dxccchart.php": `{"1":{"20":1,"40":2},"100":{"20":3,"15":1},"200":{"10":2},"291":{"20":1,"40":1,"80":3}}`,
	"/watch.php":          `{"clublog_user":true,"is_expedition":0,"has_oqrs":"1","clublog_info":{"total_qsos":"15234","last_upload":"2026-02-01 14:30:00"}}`,
	"/mostwanted.php":     `{"1":"237","2":"4","3":"246"}`,
	"/expeditions.php":    `[["3Y0K","2026-01-15",45000],["VP8A","2026-01-20",1200]]`,
	"/livestreams.php":    `[["3Y0K","199","2026-01-15","https://example.com/3Y0K"]]`,
	"/activity_json.php":  `{"20m":[10,20,30],"40m":[5]}`,
}

type faults struct {
	mu     sync.Mutex
	status map[string]int
}

func (f *faults) get(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[path]
}

func (f *faults) set(path string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	targets := []string{path}
	if path == "" {
		targets = targets[:0]
		for p := range bodies {
			targets = append(targets, p)
		}
	}
	for _, p := range targets {
		if code == 0 {
			delete(f.status, p)
		} else {
			f.status[p] = code
		}
	}
}

func main() {
	fmt.Println("Mock ClubLog server starting on :9999")
	fmt.Println("Inject faults with /_fault?status=403[&path=/watch.php]")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	f := &faults{status: make(map[string]int)}

	http.HandleFunc("/_fault", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		code, err := strconv.Atoi(r.URL.Query().Get("status"))
		if err != nil {
			http.Error(w, "status must be an integer", http.StatusBadRequest)
			return
		}
		if _, ok := bodies[path]; path != "" && !ok {
			http.Error(w, "unknown path", http.StatusNotFound)
			return
		}
		f.set(path, code)
		slog.Info("fault set", "path", path, "status", code)
		_ = json.NewEncoder(w).Encode(map[string]any{"path": path, "status": code})
	})

	for path, body := range bodies {
		http.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			slog.Info("request", "path", path, "call", r.URL.Query().Get("call"))
			if code := f.get(path); code != 0 {
				w.WriteHeader(code)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
