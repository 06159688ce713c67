package costs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhelabs/fhegas/internal/model"
)

func resetTableCache() {
	cacheMu.Lock()
	tableCache = nil
	cacheTime = time.Time{}
	cacheMu.Unlock()
}

func TestFetchTableFallsBackOnError(t *testing.T) {
	resetTableCache()

	got := FetchTable("http://127.0.0.1:0/table.json")
	assert.Equal(t, DefaultCosts(), got)
}

func TestFetchTableFallsBackOnBadPayload(t *testing.T) {
	resetTableCache()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	assert.Equal(t, DefaultCosts(), FetchTable(srv.URL))
}

func TestFetchTableCachesSuccessfulFetch(t *testing.T) {
	resetTableCache()
	defer resetTableCache()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(Table{Operations: []model.OperationCost{
			{Name: "mul", BaseCost: 18000, PerByteCost: 24},
		}})
	}))
	defer srv.Close()

	first := FetchTable(srv.URL)
	require.Equal(t, []model.OperationCost{{Name: "mul", BaseCost: 18000, PerByteCost: 24}}, first)

	// Second call within the cache window must not hit the endpoint again.
	second := FetchTable(srv.URL)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
