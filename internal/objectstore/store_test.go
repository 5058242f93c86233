package objectstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCreateExclusiveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	rel := IndicePath("BOE-A-2015-10566", "20221115", "abcdef1234")

	res1, err := s.Write(context.Background(), rel, []byte("<a><b/></a>"))
	require.NoError(t, err)
	assert.True(t, res1.Written)
	assert.False(t, res1.Exists)

	res2, err := s.Write(context.Background(), rel, []byte("<a><different/></a>"))
	require.NoError(t, err)
	assert.False(t, res2.Written)
	assert.True(t, res2.Exists)

	// the originally written content must be untouched
	b, err := s.Read(rel)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<b")
}

func TestSanitizeRestrictsCharset(t *testing.T) {
	assert.Equal(t, "BOE_A_2015_10566", Sanitize("BOE/A:2015*10566"))
}

func TestPrettyPrintFallsBackOnInvalidXML(t *testing.T) {
	raw := []byte("not xml at all")
	assert.Equal(t, raw, PrettyPrint(raw))
}

func TestPathBuilders(t *testing.T) {
	p := VersionPath("N1", "b1", "20200101", "", "0123456789abcdef")
	assert.Equal(t, "normas/N1/bloques/b1/versions/20200101__NA__01234567.xml", filepath.ToSlash(p))
}
