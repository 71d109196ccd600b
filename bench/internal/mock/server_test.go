package mock

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/semcache/internal/embedding"
	"github.com/blueberrycongee/semcache/pkg/vecmath"
)

func TestVector_DeterministicUnitLength(t *testing.T) {
	a := Vector("hello", 100)
	b := Vector("hello", 100)
	c := Vector("world", 100)

	require.Len(t, a, 100)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	assert.InDelta(t, 1.0, vecmath.Norm(a), 1e-9)
}

func TestServer_ServesOpenAIEmbeddings(t *testing.T) {
	s := NewServer()
	s.Latency = 0
	s.Dimensions = 8
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	e, err := embedding.NewOpenAIEmbedder(embedding.Config{
		APIBase: srv.URL + "/v1",
		Model:   "mock",
		Timeout: time.Second,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, Vector("a", 8), vecs[0])
	assert.Equal(t, Vector("b", 8), vecs[1])
	sim, err := vecmath.CosineSimilarity(vecs[0], vecs[1])
	require.NoError(t, err)
	assert.Less(t, sim, 1.0)
	assert.Equal(t, int64(1), s.RequestCount.Load())
}
