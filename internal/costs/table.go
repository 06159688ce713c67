package costs

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fhelabs/fhegas/internal/model"
)

const defaultTableURL = "https://raw.githubusercontent.com/fhelabs/fhegas/main/costs/fhe-cost-table.json"

// Table is the on-disk format for operator-supplied cost overrides.
type Table struct {
	Operations []model.OperationCost `yaml:"operations" json:"operations"`
}

// tableCache caches the last successfully fetched remote table. The mutex
// keeps concurrent FetchTable callers from racing on the cache; only one
// fetch is ever in flight.
var (
	cacheMu       sync.Mutex
	tableCache    []model.OperationCost
	cacheTime     time.Time
	cacheDuration = 1 * time.Hour
)

// LoadTable reads a yaml cost table from path.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parsing cost table %s: %w", path, err)
	}
	return t, nil
}

// FetchTable fetches the published cost table, falling back to the embedded
// defaults on any failure so offline installs keep working. An empty url
// selects the default endpoint.
func FetchTable(url string) []model.OperationCost {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if tableCache != nil && time.Since(cacheTime) < cacheDuration {
		return tableCache
	}
	if url == "" {
		url = defaultTableURL
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return DefaultCosts()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DefaultCosts()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DefaultCosts()
	}

	var t Table
	if err := json.Unmarshal(body, &t); err != nil {
		return DefaultCosts()
	}
	if len(t.Operations) == 0 {
		return DefaultCosts()
	}

	tableCache = t.Operations
	cacheTime = time.Now()
	return t.Operations
}
