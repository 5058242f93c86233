// Package vectorstore wires the retrieval chunk corpus into Qdrant: point
// id derivation, payload construction, and the indexer's cleanup scans
// (spec §4.8, §6).
package vectorstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"norma-pipeline/internal/ids"
)

// SentinelHastaMs is "null hasta" mapped to the maximum representable
// millisecond, so a single numeric range predicate covers open and closed
// intervals alike (spec §4.6).
const SentinelHastaMs int64 = 253402300799000

// Point is the canonical vector point payload (spec §6).
type Point struct {
	ChunkID           string
	IDNorma           string
	IDUnidad          string
	UnidadTipo        string
	UnidadRef         string
	Titulo            string
	TerritorioCodigo  string
	TerritorioTipo    string
	TerritorioNombre  string
	VigenciaDesdeMs   int64
	VigenciaHastaMs   int64
	URLConsolidated   string
	URLEli            string
	Tags              []string
	Text              string
	TextoHash         string
	ChunkingHash      string
}

// PointUUID derives the 8-4-4-4-12 UUID a chunk id maps to: the first 32 hex
// characters of the id's hash, decoded into 16 bytes and reformatted as a
// UUID (spec §6).
func PointUUID(chunkID string) string {
	h := ids.Hash(chunkID)
	if len(h) < 32 {
		h = h + strings.Repeat("0", 32-len(h))
	}
	raw, err := hex.DecodeString(h[:32])
	if err != nil {
		// Hash output is always valid lowercase hex; this path is unreachable.
		return h[:32]
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return h[:32]
	}
	return u.String()
}

// ToVigenciaHastaMs maps a nullable hasta bound to the vector store's
// sentinel representation.
func ToVigenciaHastaMs(hastaMs *int64) int64 {
	if hastaMs == nil {
		return SentinelHastaMs
	}
	return *hastaMs
}

// Store is a thin Qdrant collaborator scoped to this domain's point shape.
type Store struct {
	client     *qdrant.Client
	collection string
	metric     string
}

// Open connects to Qdrant over its gRPC endpoint; dsn may carry an
// `api_key` query parameter.
func Open(dsn, collection, metric string) (*Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create client: %w", err)
	}
	return &Store{client: client, collection: collection, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

// EnsureCollection creates the collection if missing, using the probed
// embedding dimensionality and cosine distance by default (spec §4.8).
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection: %w", err)
	}
	if exists {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("vectorstore: dimension must be positive to create a collection")
	}
	var distance qdrant.Distance
	switch s.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distance,
		}),
	})
}

// Upsert writes a batch of embedded points.
func (s *Store) Upsert(ctx context.Context, points []Point, vectors [][]float32) error {
	if len(points) != len(vectors) {
		return fmt.Errorf("vectorstore: points/vectors length mismatch: %d vs %d", len(points), len(vectors))
	}
	batch := make([]*qdrant.PointStruct, 0, len(points))
	for i, p := range points {
		batch = append(batch, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointUUID(p.ChunkID)),
			Vectors: qdrant.NewVectorsDense(vectors[i]),
			Payload: qdrant.NewValueMap(payloadMap(p)),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: s.collection, Points: batch})
	return err
}

func payloadMap(p Point) map[string]any {
	return map[string]any{
		"chunk_id":          p.ChunkID,
		"id_norma":          p.IDNorma,
		"id_unidad":         p.IDUnidad,
		"unidad_tipo":       p.UnidadTipo,
		"unidad_ref":        p.UnidadRef,
		"titulo":            p.Titulo,
		"territorio_codigo": p.TerritorioCodigo,
		"territorio_tipo":   p.TerritorioTipo,
		"territorio_nombre": p.TerritorioNombre,
		"vigencia_desde":    p.VigenciaDesdeMs,
		"vigencia_hasta":    p.VigenciaHastaMs,
		"url_html_consolidada": p.URLConsolidated,
		"url_eli":           p.URLEli,
		"tags":              tagsToAny(p.Tags),
		"text":              p.Text,
		"texto_hash":        p.TextoHash,
		"chunking_hash":     p.ChunkingHash,
	}
}

func tagsToAny(tags []string) []any {
	out := make([]any, len(tags))
	for i, t := range tags {
		out[i] = t
	}
	return out
}

// ExistingPayload is the minimal projection of a prior point payload that
// the indexer compares against to decide whether re-embedding is necessary.
type ExistingPayload struct {
	IDNorma         string
	IDUnidad        string
	TextoHash       string
	ChunkingHash    string
	VigenciaDesdeMs int64
	VigenciaHastaMs int64
}

// Unchanged reports whether an existing payload still matches a freshly
// built point (spec §4.8 step 4).
func (e ExistingPayload) Unchanged(p Point) bool {
	return e.IDNorma == p.IDNorma && e.IDUnidad == p.IDUnidad && e.TextoHash == p.TextoHash &&
		e.ChunkingHash == p.ChunkingHash && e.VigenciaDesdeMs == p.VigenciaDesdeMs && e.VigenciaHastaMs == p.VigenciaHastaMs
}

// FetchExisting bulk-retrieves current payloads for a set of chunk ids,
// keyed by the original chunk id (not the derived point UUID).
func (s *Store) FetchExisting(ctx context.Context, chunkIDs []string) (map[string]ExistingPayload, error) {
	if len(chunkIDs) == 0 {
		return map[string]ExistingPayload{}, nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(chunkIDs))
	uuidToChunk := make(map[string]string, len(chunkIDs))
	for _, id := range chunkIDs {
		u := PointUUID(id)
		uuidToChunk[u] = id
		pointIDs = append(pointIDs, qdrant.NewIDUUID(u))
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: fetch existing: %w", err)
	}
	out := make(map[string]ExistingPayload, len(points))
	for _, pt := range points {
		u := pt.Id.GetUuid()
		chunkID := uuidToChunk[u]
		payload := pt.Payload
		out[chunkID] = ExistingPayload{
			IDNorma:         payload["id_norma"].GetStringValue(),
			IDUnidad:        payload["id_unidad"].GetStringValue(),
			TextoHash:       payload["texto_hash"].GetStringValue(),
			ChunkingHash:    payload["chunking_hash"].GetStringValue(),
			VigenciaDesdeMs: payload["vigencia_desde"].GetIntegerValue(),
			VigenciaHastaMs: payload["vigencia_hasta"].GetIntegerValue(),
		}
	}
	return out, nil
}

// ScrollByNorma returns every point id currently stored for a norm, used by
// the indexer's per-norm cleanup pass.
func (s *Store) ScrollByNorma(ctx context.Context, idNorma string) ([]string, error) {
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("id_norma", idNorma)}}
	var out []string
	var offset *qdrant.PointId
	for {
		resp, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(256)),
			WithPayload:    qdrant.NewWithPayload(false),
		})
		if err != nil {
			return nil, fmt.Errorf("vectorstore: scroll by norma: %w", err)
		}
		for _, pt := range resp {
			out = append(out, pt.Id.GetUuid())
		}
		if len(resp) < 256 {
			break
		}
		offset = resp[len(resp)-1].Id
	}
	return out, nil
}

// ScrollChunkIDs walks the whole collection returning only the chunk_id
// payload field, the basis for whole-collection cross-check cleanup.
func (s *Store) ScrollChunkIDs(ctx context.Context, batchSize int) (map[string]string, error) {
	if batchSize <= 0 {
		batchSize = 256
	}
	out := make(map[string]string)
	var offset *qdrant.PointId
	for {
		resp, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(batchSize)),
			WithPayload:    qdrant.NewWithPayloadInclude([]string{"chunk_id"}),
		})
		if err != nil {
			return nil, fmt.Errorf("vectorstore: scroll chunk ids: %w", err)
		}
		for _, pt := range resp {
			u := pt.Id.GetUuid()
			if cid, ok := pt.Payload["chunk_id"]; ok {
				out[u] = cid.GetStringValue()
			}
		}
		if len(resp) < batchSize {
			break
		}
		offset = resp[len(resp)-1].Id
	}
	return out, nil
}

// DeleteByUUIDs removes points by their derived point UUIDs, in batches of
// at most batchSize.
func (s *Store) DeleteByUUIDs(ctx context.Context, pointUUIDs []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(pointUUIDs)
	}
	for start := 0; start < len(pointUUIDs); start += batchSize {
		end := start + batchSize
		if end > len(pointUUIDs) {
			end = len(pointUUIDs)
		}
		ids := make([]*qdrant.PointId, 0, end-start)
		for _, u := range pointUUIDs[start:end] {
			ids = append(ids, qdrant.NewIDUUID(u))
		}
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points:         qdrant.NewPointsSelector(ids...),
		})
		if err != nil {
			return fmt.Errorf("vectorstore: delete batch: %w", err)
		}
	}
	return nil
}

// SearchFilter scopes a similarity search by territorio, unidad type and/or
// a point in time the unit must be vigente at (spec §6 "Retrieval surface").
// TerritorioCodigo matches a single value; TerritorioCodigos, when set,
// overrides it with an "any of" match over a set of codes.
type SearchFilter struct {
	IDNorma           string
	TerritorioCodigo  string
	TerritorioCodigos []string
	TerritorioTipo    string
	UnidadTipos       []string
	VigenteAtMs       int64 // 0 disables the vigencia filter
}

// ScoredPoint is one similarity search hit.
type ScoredPoint struct {
	Score float32
	Point Point
}

// Search runs a vector similarity query with the given filter and returns
// the top limit hits ordered by descending score (spec §6 "Retrieval
// surface").
func (s *Store) Search(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]ScoredPoint, error) {
	must := []*qdrant.Condition{}
	if filter.IDNorma != "" {
		must = append(must, qdrant.NewMatch("id_norma", filter.IDNorma))
	}
	switch {
	case len(filter.TerritorioCodigos) == 1:
		must = append(must, qdrant.NewMatch("territorio_codigo", filter.TerritorioCodigos[0]))
	case len(filter.TerritorioCodigos) > 1:
		must = append(must, qdrant.NewMatchKeywords("territorio_codigo", filter.TerritorioCodigos...))
	case filter.TerritorioCodigo != "":
		must = append(must, qdrant.NewMatch("territorio_codigo", filter.TerritorioCodigo))
	}
	if filter.TerritorioTipo != "" {
		must = append(must, qdrant.NewMatch("territorio_tipo", filter.TerritorioTipo))
	}
	if len(filter.UnidadTipos) == 1 {
		must = append(must, qdrant.NewMatch("unidad_tipo", filter.UnidadTipos[0]))
	} else if len(filter.UnidadTipos) > 1 {
		must = append(must, qdrant.NewMatchKeywords("unidad_tipo", filter.UnidadTipos...))
	}
	if filter.VigenteAtMs > 0 {
		at := float64(filter.VigenteAtMs)
		must = append(must,
			qdrant.NewRange("vigencia_desde", &qdrant.Range{Lte: &at}),
			qdrant.NewRange("vigencia_hasta", &qdrant.Range{Gt: &at}),
		)
	}
	var qfilter *qdrant.Filter
	if len(must) > 0 {
		qfilter = &qdrant.Filter{Must: must}
	}

	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qfilter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	out := make([]ScoredPoint, 0, len(resp))
	for _, pt := range resp {
		out = append(out, ScoredPoint{Score: pt.Score, Point: pointFromPayload(pt.Payload)})
	}
	return out, nil
}

func pointFromPayload(payload map[string]*qdrant.Value) Point {
	tags := make([]string, 0)
	if v, ok := payload["tags"]; ok {
		for _, t := range v.GetListValue().GetValues() {
			tags = append(tags, t.GetStringValue())
		}
	}
	return Point{
		ChunkID:          payload["chunk_id"].GetStringValue(),
		IDNorma:          payload["id_norma"].GetStringValue(),
		IDUnidad:         payload["id_unidad"].GetStringValue(),
		UnidadTipo:       payload["unidad_tipo"].GetStringValue(),
		UnidadRef:        payload["unidad_ref"].GetStringValue(),
		Titulo:           payload["titulo"].GetStringValue(),
		TerritorioCodigo: payload["territorio_codigo"].GetStringValue(),
		TerritorioTipo:   payload["territorio_tipo"].GetStringValue(),
		TerritorioNombre: payload["territorio_nombre"].GetStringValue(),
		VigenciaDesdeMs:  payload["vigencia_desde"].GetIntegerValue(),
		VigenciaHastaMs:  payload["vigencia_hasta"].GetIntegerValue(),
		URLConsolidated:  payload["url_html_consolidada"].GetStringValue(),
		URLEli:           payload["url_eli"].GetStringValue(),
		Tags:             tags,
		Text:             payload["text"].GetStringValue(),
		TextoHash:        payload["texto_hash"].GetStringValue(),
		ChunkingHash:     payload["chunking_hash"].GetStringValue(),
	}
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}
