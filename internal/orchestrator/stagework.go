package orchestrator

import (
	"context"
	"fmt"
	"time"

	"norma-pipeline/internal/chunkengine"
	"norma-pipeline/internal/config"
	"norma-pipeline/internal/ids"
	"norma-pipeline/internal/indexer"
	"norma-pipeline/internal/objectstore"
	"norma-pipeline/internal/parsers"
	"norma-pipeline/internal/persistence/documents"
	"norma-pipeline/internal/semunit"
	"norma-pipeline/internal/sourceclient"
)

// StageWorkers bundles the dependencies every stage's work function needs,
// scoped to one norm id at call time (spec §4.9 "Stage workers").
type StageWorkers struct {
	Store     *documents.Store
	Source    *sourceclient.Client
	Objects   *objectstore.Store
	Extractor parsers.TextExtractor
	Chunk     config.ChunkConfig
	Indexer   *indexer.Indexer
	DryRun    bool
}

func (w *StageWorkers) chunkOptions() chunkengine.Options {
	method := chunkengine.MethodRecursive
	if chunkengine.Method(w.Chunk.Method) == chunkengine.MethodSimple {
		method = chunkengine.MethodSimple
	}
	return chunkengine.Options{Method: method, Size: w.Chunk.Size, Overlap: w.Chunk.Overlap}
}

func dateToken(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("20060102")
}

// latestVersion picks the version with the greatest (fecha_vigencia,
// fecha_publicacion, id_norma_modificadora); wire dates are fixed-width so
// lexical comparison sorts correctly (spec §4.3, §4.5 anchor selection uses
// the same tiebreak).
func latestVersion(versions []parsers.VersionDescriptor) (parsers.VersionDescriptor, bool) {
	if len(versions) == 0 {
		return parsers.VersionDescriptor{}, false
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if versionKey(v) > versionKey(best) {
			best = v
		}
	}
	return best, true
}

func versionKey(v parsers.VersionDescriptor) string {
	return v.FechaVigencia + "|" + v.FechaPublicacion + "|" + v.IDNormaModificadora
}

// Sync fetches the index XML and every block's version history, persisting
// raw snapshots to the object store and the parsed shape to the document
// repositories. A block is re-fetched only when dirty: absent locally, or
// either timestamp is missing, or the timestamps disagree (spec §4.9 "sync
// stage"). A 404 on a block's XML is a permanent, skippable miss.
func (w *StageWorkers) Sync(ctx context.Context, idNorma string) error {
	now := time.Now()

	doc, rawIndex, err := w.Source.IndexXML(ctx, idNorma)
	if err != nil {
		return fmt.Errorf("stagework: sync: fetch index: %w", err)
	}

	token := dateToken(doc.FechaActualizacion)
	hashXML := ids.HashBytes(rawIndex)
	idIndice := ids.Indice(idNorma, token, hashXML)

	if !w.DryRun {
		path := objectstore.IndicePath(idNorma, token, hashXML)
		if _, err := w.Objects.Write(ctx, path, rawIndex); err != nil {
			return fmt.Errorf("stagework: sync: write index snapshot: %w", err)
		}
		if _, err := w.Store.Indices.InsertIfMissing(ctx, documents.Indice{
			IDIndice:              idIndice,
			IDNorma:               idNorma,
			FechaActualizacionRaw: token,
			HashXML:               hashXML,
			HashPretty:            hashXML,
			FilePath:              path,
			IsLatest:              true,
			CreatedAt:             now,
			LastSeenAt:            now,
		}); err != nil {
			return fmt.Errorf("stagework: sync: insert indice: %w", err)
		}
		if err := w.Store.Indices.MarkLatestForNorma(ctx, idNorma, idIndice); err != nil {
			return fmt.Errorf("stagework: sync: mark indice latest: %w", err)
		}
	}

	existing, err := w.Store.Bloques.ListByNorma(ctx, idNorma)
	if err != nil {
		return fmt.Errorf("stagework: sync: list existing bloques: %w", err)
	}
	existingByID := make(map[string]documents.Bloque, len(existing))
	for _, b := range existing {
		existingByID[b.IDBloque] = b
	}

	for order, block := range doc.Blocks {
		incomingToken := dateToken(block.FechaActualizacion)
		prior, found := existingByID[block.ID]
		dirty := !found || incomingToken == "" || prior.FechaActualizacionRaw == "" || prior.FechaActualizacionRaw != incomingToken
		if !dirty {
			if !w.DryRun {
				_ = w.Store.Bloques.TouchLastSeen(ctx, prior.Key, now)
			}
			continue
		}
		if err := w.syncBlock(ctx, idNorma, order, block, incomingToken, now); err != nil {
			return err
		}
	}
	return nil
}

func (w *StageWorkers) syncBlock(ctx context.Context, idNorma string, order int, block parsers.BlockDescriptor, incomingToken string, now time.Time) error {
	key := ids.Bloque(idNorma, block.ID)

	bloqueDoc, rawBloque, err := w.Source.BloqueXML(ctx, idNorma, block.ID)
	if err != nil {
		if err == sourceclient.ErrNotFound {
			return nil
		}
		return fmt.Errorf("stagework: sync: fetch bloque %s: %w", block.ID, err)
	}

	if w.DryRun {
		return nil
	}

	if err := w.Store.Bloques.InsertIfMissing(ctx, documents.Bloque{
		Key:                   key,
		IDNorma:               idNorma,
		IDBloque:              block.ID,
		Tipo:                  firstNonEmpty(bloqueDoc.Tipo, block.Tipo),
		Titulo:                firstNonEmpty(bloqueDoc.Titulo, block.Titulo),
		Orden:                 order,
		FechaActualizacionRaw: incomingToken,
		URL:                   block.URL,
		CreatedAt:             now,
		LastSeenAt:            now,
	}); err != nil {
		return fmt.Errorf("stagework: sync: upsert bloque %s: %w", block.ID, err)
	}

	var latestID string
	for _, v := range bloqueDoc.Versions {
		raw := v.Raw
		if len(raw) == 0 {
			raw = rawBloque
		}
		hashXML := ids.HashBytes(raw)
		idVersion := ids.Version(idNorma, block.ID, v.FechaVigencia, v.IDNormaModificadora, hashXML)
		path := objectstore.VersionPath(idNorma, block.ID, v.FechaVigencia, v.FechaPublicacion, hashXML)

		if _, err := w.Objects.Write(ctx, path, raw); err != nil {
			return fmt.Errorf("stagework: sync: write version snapshot: %w", err)
		}

		text := w.Extractor(raw)
		textoHash := ids.HashBytes([]byte(text))
		inserted, err := w.Store.Versions.InsertIfMissing(ctx, documents.Version{
			IDVersion:           idVersion,
			IDNorma:             idNorma,
			IDBloque:            block.ID,
			FechaVigenciaRaw:    v.FechaVigencia,
			FechaPublicacionRaw: v.FechaPublicacion,
			IDNormaModificadora: v.IDNormaModificadora,
			HashXML:             hashXML,
			FilePath:            path,
			TextoPlano:          text,
			TextoHash:           textoHash,
			CreatedAt:           now,
			LastSeenAt:          now,
		})
		if err != nil {
			return fmt.Errorf("stagework: sync: upsert version: %w", err)
		}
		if !inserted {
			if err := w.Store.Versions.TouchLastSeen(ctx, idVersion, now); err != nil {
				return fmt.Errorf("stagework: sync: touch version: %w", err)
			}
		}

		if best, ok := latestVersion(bloqueDoc.Versions); ok && versionKey(v) == versionKey(best) {
			latestID = idVersion
		}
	}
	if latestID != "" {
		if err := w.Store.Versions.MarkLatestForBlock(ctx, idNorma, block.ID, latestID); err != nil {
			return fmt.Errorf("stagework: sync: mark version latest: %w", err)
		}
		if err := w.Store.Bloques.MarkLatestVersion(ctx, key, latestID); err != nil {
			return fmt.Errorf("stagework: sync: mark bloque latest version: %w", err)
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// BuildUnits rebuilds the block tree from what sync persisted and runs the
// semantic unit builder over it (spec §4.5, §4.9 "build_units stage").
func (w *StageWorkers) BuildUnits(ctx context.Context, idNorma string) error {
	if w.DryRun {
		return nil
	}
	norma, found, err := w.Store.Normas.Get(ctx, idNorma)
	if err != nil {
		return fmt.Errorf("stagework: build_units: load norma: %w", err)
	}
	if !found {
		return fmt.Errorf("stagework: build_units: norma %s not found", idNorma)
	}

	bloques, err := w.Store.Bloques.ListByNorma(ctx, idNorma)
	if err != nil {
		return fmt.Errorf("stagework: build_units: list bloques: %w", err)
	}

	blocks := make([]parsers.BlockDescriptor, 0, len(bloques))
	versionsByBlock := make(map[string][]parsers.VersionDescriptor, len(bloques))

	indiceHash := ""
	if latest, found, err := w.Store.Indices.GetLatest(ctx, idNorma); err != nil {
		return fmt.Errorf("stagework: build_units: load latest indice: %w", err)
	} else if found {
		indiceHash = latest.HashXML
	}

	for _, b := range bloques {
		blocks = append(blocks, parsers.BlockDescriptor{
			ID:     b.IDBloque,
			Tipo:   b.Tipo,
			Titulo: b.Titulo,
			URL:    b.URL,
			Order:  b.Orden,
		})
		versions, err := w.Store.Versions.ListForBlock(ctx, idNorma, b.IDBloque)
		if err != nil {
			return fmt.Errorf("stagework: build_units: list versions for %s: %w", b.IDBloque, err)
		}
		descriptors := make([]parsers.VersionDescriptor, 0, len(versions))
		for i, v := range versions {
			descriptors = append(descriptors, parsers.VersionDescriptor{
				IDNormaModificadora: v.IDNormaModificadora,
				FechaVigencia:       v.FechaVigenciaRaw,
				FechaPublicacion:    v.FechaPublicacionRaw,
				Raw:                 []byte(v.TextoPlano),
				Order:               i,
			})
		}
		versionsByBlock[b.IDBloque] = descriptors
	}

	extract := func(raw []byte) string { return string(raw) }

	nc := semunit.NormaContext{
		IDNorma:            idNorma,
		RangoCodigo:        norma.RangoCodigo,
		RangoTexto:         norma.RangoTexto,
		DepartamentoCodigo: norma.DepartamentoCodigo,
		URLConsolidated:    norma.URLConsolidated,
		Territorio:         norma.Territorio,
		IndiceHash:         indiceHash,
	}

	return semunit.Sync(ctx, w.Store, nc, blocks, versionsByBlock, extract, time.Now())
}

// BuildChunks splits every latest unit of the norm into retrieval chunks and
// garbage-collects chunks no longer produced by the current pass (spec §4.7,
// §4.9 "build_chunks stage").
func (w *StageWorkers) BuildChunks(ctx context.Context, idNorma string) error {
	if w.DryRun {
		return nil
	}
	lineages, err := w.Store.Unidades.DistinctLineageKeys(ctx, idNorma)
	if err != nil {
		return fmt.Errorf("stagework: build_chunks: list lineages: %w", err)
	}
	opt := w.chunkOptions()
	now := time.Now()

	for _, lineage := range lineages {
		units, err := w.Store.Unidades.ListByLineage(ctx, lineage)
		if err != nil {
			return fmt.Errorf("stagework: build_chunks: list units for %s: %w", lineage, err)
		}
		for _, u := range units {
			if !u.IsLatest || u.SkipRetrieval {
				continue
			}
			produced := chunkengine.Split(u.TextoPlano, u.UnidadTipo, opt)
			keepIDs := make([]string, 0, len(produced))
			for _, c := range produced {
				text := chunkengine.NormalizeWhitespace(c.Text)
				if text == "" || chunkengine.IsHeadingOnlyChunk(text, u.UnidadTipo) {
					continue
				}
				textoHash := ids.HashBytes([]byte(text))
				idChunk := ids.Chunk(u.IDUnidad, opt.Hash(), c.Index, textoHash)
				keepIDs = append(keepIDs, idChunk)
				if err := w.Store.Chunks.Upsert(ctx, documents.ChunkSemantico{
					IDChunk:            idChunk,
					IDUnidad:           u.IDUnidad,
					IDNorma:            idNorma,
					ChunkIndex:         c.Index,
					Texto:              text,
					TextoHash:          textoHash,
					ChunkingHash:       opt.Hash(),
					ChunkingMethod:     string(opt.Method),
					ChunkingSize:       opt.Size,
					ChunkingOverlap:    opt.Overlap,
					UnidadTipo:         u.UnidadTipo,
					UnidadRef:          u.UnidadRef,
					Titulo:             u.Titulo,
					FechaVigenciaDesde: u.FechaVigenciaDesde,
					FechaVigenciaHasta: u.FechaVigenciaHasta,
					Metadata:           u.Metadata,
					CreatedAt:          now,
					LastSeenAt:         now,
				}); err != nil {
					return fmt.Errorf("stagework: build_chunks: upsert chunk: %w", err)
				}
			}
			if _, err := w.Store.Chunks.DeleteOrphans(ctx, u.IDUnidad, opt.Hash(), keepIDs); err != nil {
				return fmt.Errorf("stagework: build_chunks: delete orphans: %w", err)
			}
		}
	}
	return nil
}

// Index embeds and upserts the norm's chunks into the vector store,
// delegating to the shared indexer scoped by OnlyNorma (spec §4.8, §4.9
// "index stage").
func (w *StageWorkers) Index(ctx context.Context, idNorma string) error {
	_, err := w.Indexer.Run(ctx, indexer.Options{
		OnlyNorma:      idNorma,
		CleanupEnabled: false,
		DryRun:         w.DryRun,
	})
	return err
}
