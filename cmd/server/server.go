package main

import (
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stanfordnlp/phrasal-sub010/config"
	"github.com/stanfordnlp/phrasal-sub010/decoder"
	"github.com/stanfordnlp/phrasal-sub010/engine"
	"github.com/stanfordnlp/phrasal-sub010/util"
)

const maxNBest = 100

// server holds the current engine. Requests take a snapshot under the read
// lock, so a reload never blocks or disturbs a decode in flight.
type server struct {
	configPath string
	metrics    *decoder.Metrics
	gatherer   prometheus.Gatherer
	logger     *slog.Logger

	mu     sync.RWMutex
	engine *engine.Engine

	nextID atomic.Int64
}

func newServer(configPath string, metrics *decoder.Metrics, gatherer prometheus.Gatherer) *server {
	return &server{
		configPath: configPath,
		metrics:    metrics,
		gatherer:   gatherer,
		logger:     slog.Default(),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/translate", s.handleTranslate)
	mux.HandleFunc("/nbest", s.handleNBest)
	mux.HandleFunc("/reload", s.handleReload)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// reloadEngine reads the config and models from disk and swaps them in.
// On failure the previous engine stays active.
func (s *server) reloadEngine() error {
	log.Println("Reloading engine...")
	path := s.configPath
	if !util.FileExists(path) {
		log.Printf("Note: config %s not found, using defaults and environment.", path)
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	e, err := engine.Load(cfg, s.logger, s.metrics)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.engine = e
	s.mu.Unlock()
	log.Printf("Engine reloaded successfully (%d source phrases).", len(e.PhraseTable.Entries))
	return nil
}

func (s *server) current() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Request/Response types
type TranslateRequest struct {
	Text      string   `json:"text"`
	Reference []string `json:"reference,omitempty"` // forced decoding targets
}

type NBestRequest struct {
	Text     string `json:"text"`
	Size     int    `json:"size"`
	Distinct bool   `json:"distinct"`
}

type TranslationResponse struct {
	Translation string             `json:"translation"`
	Tokens      []string           `json:"tokens"`
	Score       float64            `json:"score"`
	Features    map[string]float64 `json:"features,omitempty"`
}

type NBestResponse struct {
	Translations []TranslationResponse `json:"translations"`
}

func toResponse(tr *decoder.Translation) TranslationResponse {
	resp := TranslationResponse{
		Translation: util.Detokenize(tr.Target),
		Tokens:      tr.Target,
		Score:       tr.Score,
	}
	if len(tr.Features) > 0 {
		resp.Features = make(map[string]float64, len(tr.Features))
		for _, fv := range tr.Features {
			resp.Features[fv.Name] += fv.Value
		}
	}
	if resp.Tokens == nil {
		resp.Tokens = []string{}
	}
	return resp
}

func (s *server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	e := s.current()
	id := int(s.nextID.Add(1))
	var (
		tr *decoder.Translation
		ok bool
	)
	if len(req.Reference) > 0 {
		tr, ok = e.Force(req.Text, id, req.Reference...)
	} else {
		tr, ok = e.Translate(req.Text, id)
	}
	if !ok {
		http.Error(w, "no translation found", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, toResponse(tr))
}

func (s *server) handleNBest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req NBestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Size <= 0 || req.Size > maxNBest {
		http.Error(w, "size must be between 1 and 100", http.StatusBadRequest)
		return
	}

	e := s.current()
	list, ok := e.NBest(req.Text, int(s.nextID.Add(1)), req.Size, req.Distinct)
	if !ok {
		http.Error(w, "no translation found", http.StatusUnprocessableEntity)
		return
	}
	resp := NBestResponse{Translations: make([]TranslationResponse, 0, len(list))}
	for _, tr := range list {
		resp.Translations = append(resp.Translations, toResponse(tr))
	}
	writeJSON(w, resp)
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.reloadEngine(); err != nil {
		log.Printf("Reload failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	e := s.current()
	writeJSON(w, map[string]any{
		"loaded_at": e.LoadedAt,
		"sources":   len(e.PhraseTable.Entries),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
