// Package ids composes the deterministic, content-addressed identifiers used
// throughout the pipeline. Every builder here is a pure function: the same
// inputs always produce the same id, and changing any input changes the id.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const sep = "\x1f" // unit separator, avoids ambiguity between adjacent fields

// Hash returns the hex-encoded sha256 digest of the given parts joined by a
// separator byte that cannot appear in any normal field value.
func Hash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte(sep))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashBytes hashes raw bytes (used for XML/text payload hashing).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Indice builds id_indice = H(id_norma, fecha_actualizacion_raw, hash_xml).
func Indice(idNorma, fechaActualizacionRaw, hashXML string) string {
	return Hash(idNorma, fechaActualizacionRaw, hashXML)
}

// Bloque builds H(id_norma, id_bloque).
func Bloque(idNorma, idBloque string) string {
	return Hash(idNorma, idBloque)
}

// Version builds id_version = H(id_norma, id_bloque, fecha_vigencia_raw, id_norma_modificadora, hash_xml).
func Version(idNorma, idBloque, fechaVigenciaRaw, idNormaModificadora, hashXML string) string {
	return Hash(idNorma, idBloque, fechaVigenciaRaw, idNormaModificadora, hashXML)
}

// LineageKey builds lineage_key = H(id_norma, unidad_tipo, unidad_ref).
func LineageKey(idNorma, unidadTipo, unidadRef string) string {
	return Hash(idNorma, unidadTipo, unidadRef)
}

// Unidad builds id_unidad per spec §4.5:
// H(id_norma, unidad_tipo, unidad_ref, vigencia_desde_iso|"", id_norma_modificadora|"", texto_hash).
func Unidad(idNorma, unidadTipo, unidadRef, vigenciaDesdeISO, idNormaModificadora, textoHash string) string {
	return Hash(idNorma, unidadTipo, unidadRef, vigenciaDesdeISO, idNormaModificadora, textoHash)
}

// Chunk builds H(id_unidad, chunking_hash, chunk_index, texto_hash).
func Chunk(idUnidad, chunkingHash string, chunkIndex int, textoHash string) string {
	return Hash(idUnidad, chunkingHash, strconv.Itoa(chunkIndex), textoHash)
}

// ChunkingHash builds H(method, size, overlap) — identifies a chunker configuration.
func ChunkingHash(method string, size, overlap int) string {
	return Hash(strings.ToLower(method), strconv.Itoa(size), strconv.Itoa(overlap))
}
