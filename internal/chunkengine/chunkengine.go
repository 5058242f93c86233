// Package chunkengine splits a unit's composed text into retrieval chunks
// and filters out heading-only fragments (spec §4.7).
package chunkengine

import (
	"strings"

	"norma-pipeline/internal/ids"
)

// Method selects the splitting strategy.
type Method string

const (
	MethodSimple    Method = "simple"
	MethodRecursive Method = "recursive"
)

// Options configures a chunking pass; ChunkingHash is derived from these
// three fields via ids.ChunkingHash.
type Options struct {
	Method  Method
	Size    int
	Overlap int
}

// Hash returns the chunking_hash for these options.
func (o Options) Hash() string {
	return ids.ChunkingHash(string(o.Method), o.Size, o.Overlap)
}

// Chunk is one produced chunk, prior to id assignment and persistence.
type Chunk struct {
	Index int
	Text  string
}

// Split produces the unit's chunks honoring the ARTICULO single-chunk
// bypass rule: if unidadTipo is ARTICULO and the text's rune length fits
// within the configured size, the whole text becomes one chunk.
func Split(text, unidadTipo string, opt Options) []Chunk {
	if unidadTipo == "ARTICULO" && len([]rune(text)) <= opt.Size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []Chunk{{Index: 0, Text: trimmed}}
	}
	switch opt.Method {
	case MethodRecursive:
		return recursiveSplit(text, opt)
	default:
		return simpleSplit(text, opt)
	}
}

// simpleSplit is a sliding window over chunk_size characters; step is
// size - clamp(overlap, 0, size-1), never less than 1. Empty slices after
// trimming are dropped.
func simpleSplit(text string, opt Options) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 || opt.Size <= 0 {
		return nil
	}
	overlap := clamp(opt.Overlap, 0, opt.Size-1)
	step := opt.Size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + opt.Size
		if end > len(runes) {
			end = len(runes)
		}
		slice := strings.TrimSpace(string(runes[start:end]))
		if slice != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: slice})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// recursiveSplit accumulates paragraphs (blank-line separated) greedily up
// to chunk_size; an oversized single paragraph is flushed and split with
// simpleSplit on its own. Overlap is re-applied afterward by prepending the
// last `overlap` characters of the previous chunk to each subsequent one.
func recursiveSplit(text string, opt Options) []Chunk {
	if opt.Size <= 0 {
		return nil
	}
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var raw []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			raw = append(raw, s)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len([]rune(p)) > opt.Size {
			flush()
			for _, c := range simpleSplit(p, Options{Method: MethodSimple, Size: opt.Size, Overlap: 0}) {
				raw = append(raw, c.Text)
			}
			continue
		}
		candidate := current.String()
		if candidate != "" {
			candidate += "\n\n"
		}
		candidate += p
		if len([]rune(candidate)) > opt.Size {
			flush()
			current.WriteString(p)
		} else {
			current.Reset()
			current.WriteString(candidate)
		}
	}
	flush()

	overlap := clamp(opt.Overlap, 0, opt.Size-1)
	chunks := make([]Chunk, 0, len(raw))
	for i, text := range raw {
		if i > 0 && overlap > 0 {
			prevRunes := []rune(raw[i-1])
			n := overlap
			if n > len(prevRunes) {
				n = len(prevRunes)
			}
			text = string(prevRunes[len(prevRunes)-n:]) + text
		}
		chunks = append(chunks, Chunk{Index: i, Text: text})
	}
	return chunks
}

func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(normalized, "\n\n")
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
