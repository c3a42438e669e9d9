// internal/workers/takeoff/lookup-cost-codes/handler_test.go
package lookupcostcodes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/common/cache"
	"takeoff-workers/internal/common/logger"
)

func fakeCatalog(calls *int32, hits []map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)

		esHits := make([]map[string]interface{}, 0, len(hits))
		for _, h := range hits {
			esHits = append(esHits, map[string]interface{}{"_source": h})
		}

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"took": 3,
			"hits": map[string]interface{}{
				"total": map[string]interface{}{"value": len(hits)},
				"hits":  esHits,
			},
		})
	}))
}

func newESClient(t *testing.T, url string) *elasticsearch.Client {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	require.NoError(t, err)
	return client
}

func createTestConfig() *Config {
	return &Config{Index: "cost-codes", Timeout: 5 * time.Second, MaxResults: 20}
}

func TestExecute_SearchAndFragment(t *testing.T) {
	var calls int32
	server := fakeCatalog(&calls, []map[string]interface{}{
		{"code": "03 30 00", "title": "Cast-in-Place Concrete", "division": "03"},
		{"code": "03 20 00", "title": "Concrete Reinforcing", "division": "03"},
	})
	defer server.Close()

	handler := NewHandler(createTestConfig(), newESClient(t, server.URL), nil, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{
		Standard: "CSI MasterFormat",
		Query:    "concrete",
	})

	require.NoError(t, err)
	require.Len(t, output.Entries, 2)
	assert.Equal(t, "03 30 00", output.Entries[0].Code)
	assert.Equal(t, 2, output.TotalHits)
	assert.False(t, output.FromCache)
	assert.Contains(t, output.ReferenceFragment, "Standard: CSI MasterFormat")
	assert.Contains(t, output.ReferenceFragment, "03 30 00 — Cast-in-Place Concrete (division 03)")
}

func TestExecute_FragmentCacheShortCircuitsSearch(t *testing.T) {
	var calls int32
	server := fakeCatalog(&calls, []map[string]interface{}{
		{"code": "06 11 00", "title": "Wood Framing", "division": "06"},
	})
	defer server.Close()

	mr := miniredis.RunT(t)
	fragments := cache.NewFragmentCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	handler := NewHandler(createTestConfig(), newESClient(t, server.URL), fragments, logger.NewNoOpLogger())
	input := &Input{Standard: "CSI MasterFormat", Query: "framing"}

	first, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	second, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ReferenceFragment, second.ReferenceFragment)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "cached lookup must not hit the index")
}

func TestExecute_EmptyQueryRejected(t *testing.T) {
	handler := NewHandler(createTestConfig(), nil, nil, logger.NewNoOpLogger())

	_, err := handler.Execute(context.Background(), &Input{Standard: "CSI MasterFormat", Query: "  "})

	assert.ErrorIs(t, err, ErrMissingQuery)
}

func TestExecute_SearchErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	handler := NewHandler(createTestConfig(), newESClient(t, server.URL), nil, logger.NewNoOpLogger())

	_, err := handler.Execute(context.Background(), &Input{Query: "concrete"})

	assert.ErrorIs(t, err, ErrCatalogSearchFailed)
}
