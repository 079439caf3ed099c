package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/intentd/internal/config"
)

func length(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestOllamaClient_EmbedNormalises(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedReq
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, []string{"login bug", "sprint 12"}, req.Input)
		w.Write([]byte(`{"embeddings":[[3,4],[0,2]]}`))
	}))
	defer srv.Close()

	e := New(config.ProviderConfig{Type: "ollama", BaseURL: srv.URL, Timeout: time.Second}, "nomic-embed-text")
	vecs, err := e.Embed(context.Background(), []string{"login bug", "sprint 12"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 1.0, length(vecs[0]), 1e-6)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestOpenAIClient_EmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e := New(config.ProviderConfig{Type: "openai", BaseURL: srv.URL, APIKey: "sk-test"}, "text-embedding-3-small")
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestEmbed_RejectsZeroVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[0,0]]}`))
	}))
	defer srv.Close()

	e := New(config.ProviderConfig{Type: "ollama", BaseURL: srv.URL}, "m")
	_, err := e.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}

type countingEmbedder struct {
	calls atomic.Int32
	texts []string
}

func (c *countingEmbedder) Model() string { return "m" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func TestCachedEmbedder(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, rdb, time.Hour)
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"alpha", "be"})
	require.NoError(t, err)

	second, err := c.Embed(ctx, []string{"be", "gamma"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0], "cached vector must round-trip")
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, []string{"alpha", "be", "gamma"}, inner.texts, "only misses reach the provider")
	assert.True(t, mr.Exists(cacheKey("m", "alpha")))
}

func TestCachedEmbedder_NilRedis(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, nil, time.Hour)
	_, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}
