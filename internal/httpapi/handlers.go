package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"norma-pipeline/internal/answerer"
	"norma-pipeline/internal/orchestrator"
	"norma-pipeline/internal/persistence/vectorstore"
)

const (
	modeNormativo = "NORMATIVO"
	modeVigencia  = "VIGENCIA"
	modeMixto     = "MIXTO"

	scopeAutonomicoMasEstatal = "AUTONOMICO_MAS_ESTATAL"
	scopeEstatal              = "ESTATAL"
)

var baseUnidadTipos = []string{"ARTICULO", "DISPOSICION_ADICIONAL", "DISPOSICION_TRANSITORIA", "DISPOSICION_FINAL", "ANEXO"}

var errBadRequest = errors.New("bad request")

// searchRequest is the shared body of /rag/search and /rag/answer.
type searchRequest struct {
	Query            string  `json:"query"`
	AsOf             string  `json:"asOf,omitempty"`
	Scope            string  `json:"scope,omitempty"`
	CCAACodigo       string  `json:"ccaaCodigo,omitempty"`
	Territorio       string  `json:"territorio,omitempty"`
	Mode             string  `json:"mode,omitempty"`
	TopK             int     `json:"topK,omitempty"`
	MinScore         float64 `json:"minScore,omitempty"`
	IncludePreambulo bool    `json:"includePreambulo,omitempty"`
}

type resolvedQuery struct {
	asOf             time.Time
	mode             string
	topK             int
	minScore         float64
	territorioCodes  []string
	unidadTipos      []string
	scope            string
}

// searchFilters is the echoed `filters` object of a search/answer response.
type searchFilters struct {
	Scope            string   `json:"scope,omitempty"`
	TerritorioCodigos []string `json:"territorioCodigos,omitempty"`
	UnidadTipos      []string `json:"unidadTipos"`
	AsOfMs           int64    `json:"asOfMs"`
}

type searchResult struct {
	ChunkID          string   `json:"chunkId"`
	IDNorma          string   `json:"idNorma"`
	IDUnidad         string   `json:"idUnidad"`
	UnidadTipo       string   `json:"unidadTipo"`
	UnidadRef        string   `json:"unidadRef"`
	Titulo           string   `json:"titulo"`
	TerritorioCodigo string   `json:"territorioCodigo"`
	VigenciaDesde    string   `json:"vigenciaDesde,omitempty"`
	URLConsolidated  string   `json:"urlConsolidado,omitempty"`
	Score            float64  `json:"score"`
	Text             string   `json:"text"`
	Tags             []string `json:"tags,omitempty"`
}

type searchStats struct {
	CandidatesFetched int `json:"candidatesFetched"`
	AfterMinScore     int `json:"afterMinScore"`
	Returned          int `json:"returned"`
}

var derogatoriaRe = regexp.MustCompile(`(?i)derogatori`)

func (s *Server) resolveQuery(req searchRequest) (resolvedQuery, error) {
	if len(strings.TrimSpace(req.Query)) < 3 {
		return resolvedQuery{}, fmt.Errorf("%w: query must be at least 3 characters", errBadRequest)
	}

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if req.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			return resolvedQuery{}, fmt.Errorf("%w: invalid asOf: %v", errBadRequest, err)
		}
		asOf = parsed.UTC()
	}

	mode := req.Mode
	if mode == "" {
		mode = modeNormativo
	}
	if mode != modeNormativo && mode != modeVigencia && mode != modeMixto {
		return resolvedQuery{}, fmt.Errorf("%w: invalid mode %q", errBadRequest, req.Mode)
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.rag.DefaultTopK
	}
	if topK < 1 {
		topK = 1
	}
	if topK > s.rag.MaxTopK {
		topK = s.rag.MaxTopK
	}

	minScore := req.MinScore
	if minScore < 0 {
		minScore = 0
	}

	var codes []string
	switch req.Scope {
	case scopeAutonomicoMasEstatal:
		if !strings.HasPrefix(req.CCAACodigo, "CCAA:") {
			return resolvedQuery{}, fmt.Errorf("%w: scope %s requires a ccaaCodigo starting with \"CCAA:\"", errBadRequest, scopeAutonomicoMasEstatal)
		}
		codes = []string{req.CCAACodigo, "ES:STATE"}
	case scopeEstatal:
		codes = []string{"ES:STATE"}
	default:
		if req.Territorio != "" {
			codes = []string{req.Territorio}
		}
	}

	unidadTipos := append([]string(nil), baseUnidadTipos...)
	if mode == modeMixto || req.IncludePreambulo {
		unidadTipos = append(unidadTipos, "PREAMBULO")
	}

	return resolvedQuery{
		asOf:            asOf,
		mode:            mode,
		topK:            topK,
		minScore:        minScore,
		territorioCodes: codes,
		unidadTipos:     unidadTipos,
		scope:           req.Scope,
	}, nil
}

func (s *Server) runSearch(r *http.Request, req searchRequest) (resolvedQuery, []vectorstore.ScoredPoint, searchStats, error) {
	rq, err := s.resolveQuery(req)
	if err != nil {
		return resolvedQuery{}, nil, searchStats{}, err
	}

	vectors, err := s.embedder.Embed(r.Context(), []string{req.Query})
	if err != nil || len(vectors) == 0 {
		if err == nil {
			err = fmt.Errorf("embedder returned no vector")
		}
		return resolvedQuery{}, nil, searchStats{}, fmt.Errorf("embed query: %w", err)
	}

	candidates := rq.topK * s.candidateMultiplier()
	if candidates < rq.topK {
		candidates = rq.topK
	}
	if candidates > s.rag.MaxCandidates {
		candidates = s.rag.MaxCandidates
	}

	filter := vectorstore.SearchFilter{
		TerritorioCodigos: rq.territorioCodes,
		UnidadTipos:       rq.unidadTipos,
		VigenteAtMs:       rq.asOf.UnixMilli(),
	}
	hits, err := s.vectors.Search(r.Context(), vectors[0], filter, candidates)
	if err != nil {
		return resolvedQuery{}, nil, searchStats{}, fmt.Errorf("vector search: %w", err)
	}

	stats := searchStats{CandidatesFetched: len(hits)}

	filtered := hits[:0:0]
	for _, h := range hits {
		if float64(h.Score) < rq.minScore {
			continue
		}
		filtered = append(filtered, h)
	}
	stats.AfterMinScore = len(filtered)

	for i := range filtered {
		filtered[i].Score += float32(scoreBoost(rq.mode, filtered[i].Point))
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	if len(filtered) > rq.topK {
		filtered = filtered[:rq.topK]
	}
	stats.Returned = len(filtered)

	return rq, filtered, stats, nil
}

func (s *Server) candidateMultiplier() int {
	if s.rag.CandidateMultiplier <= 0 {
		return 1
	}
	return s.rag.CandidateMultiplier
}

// scoreBoost applies the deterministic, mode-dependent post-score boost
// (spec §6 "Post-score boost by mode").
func scoreBoost(mode string, p vectorstore.Point) float64 {
	isFinalOrDerogatoria := p.UnidadTipo == "DISPOSICION_FINAL" ||
		derogatoriaRe.MatchString(p.UnidadRef) || derogatoriaRe.MatchString(p.Titulo)
	isTransitoriaOrAdicional := p.UnidadTipo == "DISPOSICION_TRANSITORIA" || p.UnidadTipo == "DISPOSICION_ADICIONAL"
	isArticulo := p.UnidadTipo == "ARTICULO"
	isOtherDisposicion := strings.HasPrefix(p.UnidadTipo, "DISPOSICION_") && !isFinalOrDerogatoria && !isTransitoriaOrAdicional

	var boost float64
	switch mode {
	case modeVigencia:
		switch {
		case isFinalOrDerogatoria:
			boost += 0.08
		case isTransitoriaOrAdicional:
			boost += 0.04
		}
		if hasTag(p.Tags, "nota_inicial") {
			boost += 0.1
		}
		if isArticulo {
			boost += 0.02
		}
	case modeMixto:
		switch {
		case isArticulo:
			boost += 0.03
		case isOtherDisposicion || isFinalOrDerogatoria || isTransitoriaOrAdicional:
			boost += 0.02
		}
	}
	return boost
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func toSearchResult(hit vectorstore.ScoredPoint) searchResult {
	p := hit.Point
	res := searchResult{
		ChunkID:          p.ChunkID,
		IDNorma:          p.IDNorma,
		IDUnidad:         p.IDUnidad,
		UnidadTipo:       p.UnidadTipo,
		UnidadRef:        p.UnidadRef,
		Titulo:           p.Titulo,
		TerritorioCodigo: p.TerritorioCodigo,
		URLConsolidated:  p.URLConsolidated,
		Score:            float64(hit.Score),
		Text:             p.Text,
		Tags:             p.Tags,
	}
	if p.VigenciaDesdeMs > 0 {
		res.VigenciaDesde = time.UnixMilli(p.VigenciaDesdeMs).UTC().Format("2006-01-02")
	}
	return res
}

func citationLabel(p vectorstore.Point) string {
	desde := "?"
	if p.VigenciaDesdeMs > 0 {
		desde = time.UnixMilli(p.VigenciaDesdeMs).UTC().Format("2006-01-02")
	}
	return fmt.Sprintf("%s - %s (vigente desde %s)", p.IDNorma, p.UnidadRef, desde)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	rq, hits, stats, err := s.runSearch(r, req)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	results := make([]searchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, toSearchResult(h))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"query": req.Query,
		"asOf":  rq.asOf.Format(time.RFC3339),
		"mode":  rq.mode,
		"filters": searchFilters{
			Scope:             rq.scope,
			TerritorioCodigos: rq.territorioCodes,
			UnidadTipos:       rq.unidadTipos,
			AsOfMs:            rq.asOf.UnixMilli(),
		},
		"results": results,
		"stats":   stats,
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	rq, hits, stats, err := s.runSearch(r, req)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	citations := make([]answerer.Citation, 0, len(hits))
	used := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		label := citationLabel(h.Point)
		citations = append(citations, answerer.Citation{Label: label, Text: h.Point.Text})
		used = append(used, map[string]any{
			"label":    label,
			"chunkId":  h.Point.ChunkID,
			"idNorma":  h.Point.IDNorma,
			"idUnidad": h.Point.IDUnidad,
			"score":    float64(h.Score),
		})
	}

	answer, err := s.answers.Answer(r.Context(), req.Query, citations)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"query":         req.Query,
		"asOf":          rq.asOf.Format(time.RFC3339),
		"mode":          rq.mode,
		"answer":        answer,
		"usedCitations": used,
		"stats":         stats,
	})
}

func (s *Server) handleGetUnidad(w http.ResponseWriter, r *http.Request) {
	idUnidad := r.PathValue("id_unidad")
	u, found, err := s.store.Unidades.Get(r.Context(), idUnidad)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, fmt.Errorf("unidad %q not found", idUnidad))
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleCatalogCCAA(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.Territorios.ListCCAA(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ccaa": list})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptimeSec": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handlePipelineStats(w http.ResponseWriter, r *http.Request) {
	windowMinutes, err := strconv.Atoi(r.URL.Query().Get("windowMinutes"))
	if err != nil || windowMinutes <= 0 {
		windowMinutes = 15
	}
	window := time.Duration(windowMinutes) * time.Minute

	throughput := map[string]orchestrator.StageCounts{}
	if s.stats != nil {
		for stage, counts := range s.stats.Snapshot(time.Now(), window) {
			throughput[string(stage)] = counts
		}
	}

	depths := map[string]any{}
	if s.queues != nil {
		for _, stage := range []orchestrator.Stage{orchestrator.StageSync, orchestrator.StageBuildUnits, orchestrator.StageBuildChunks, orchestrator.StageIndex} {
			depth, err := s.queues.Depth(r.Context(), stage)
			if err != nil {
				depths[string(stage)] = map[string]string{"error": err.Error()}
				continue
			}
			depths[string(stage)] = depth
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"windowMinutes": windowMinutes,
		"throughput":    throughput,
		"queueDepths":   depths,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
