package vigencia

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestDeriveIntervalsContiguousChain(t *testing.T) {
	units := []Unit{
		{IDUnidad: "u3", Desde: d("2022-01-01")},
		{IDUnidad: "u1", Desde: d("2020-01-01")},
		{IDUnidad: "u2", Desde: d("2021-01-01")},
	}
	out := DeriveIntervals(units)
	require.Len(t, out, 3)
	assert.Equal(t, "u1", out[0].IDUnidad)
	assert.True(t, out[0].Hasta.Equal(*d("2021-01-01")))
	assert.Equal(t, "u2", out[1].IDUnidad)
	assert.True(t, out[1].Hasta.Equal(*d("2022-01-01")))
	assert.Equal(t, "u3", out[2].IDUnidad)
	assert.Nil(t, out[2].Hasta)
}

func TestIsActiveAtInclusiveLowerStrictUpper(t *testing.T) {
	u := Unit{Desde: d("2020-01-01"), Hasta: d("2021-01-01")}
	assert.True(t, IsActiveAt(u, *d("2020-01-01")))
	assert.True(t, IsActiveAt(u, *d("2020-06-01")))
	assert.False(t, IsActiveAt(u, *d("2021-01-01")))
	assert.False(t, IsActiveAt(u, *d("2019-01-01")))
}

func TestFilterAsOfPicksSingleActiveUnit(t *testing.T) {
	units := DeriveIntervals([]Unit{
		{IDUnidad: "u1", Desde: d("2020-01-01")},
		{IDUnidad: "u2", Desde: d("2021-01-01")},
	})
	active := FilterAsOf(units, *d("2020-06-01"))
	require.Len(t, active, 1)
	assert.Equal(t, "u1", active[0].IDUnidad)
}

func TestToMillisSentinelForNilHasta(t *testing.T) {
	assert.Equal(t, int64(0), ToDesdeMillis(nil))
	assert.Equal(t, SentinelHastaMs, ToHastaMillis(nil))
}
