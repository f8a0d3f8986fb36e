// Package catalog is the narrow contract to the storefront catalog,
// which is maintained outside this system. Only the fields the
// orchestration core reads are modeled.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Item struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	MemoryMB int               `json:"memory_mb"`
	Tags     map[string]string `json:"tags"`
}

// Provider returns the explicit provider tag, if the catalog carries
// one for this item.
func (item *Item) Provider() string {
	if item == nil {
		return ""
	}
	return item.Tags["provider"]
}

type Service interface {
	GetItem(ctx context.Context, id string) (*Item, error)
}

type httpCatalog struct {
	apiURL     string
	httpClient *http.Client
}

func NewHTTPCatalog(apiURL string) *httpCatalog {
	return &httpCatalog{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (svc *httpCatalog) GetItem(ctx context.Context, id string) (*Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.apiURL+"/items/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog item fetch failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// StaticCatalog serves items from memory; used in tests and when no
// catalog URL is configured.
type StaticCatalog struct {
	Items map[string]*Item
}

func (svc *StaticCatalog) GetItem(ctx context.Context, id string) (*Item, error) {
	item, ok := svc.Items[id]
	if !ok {
		return nil, fmt.Errorf("catalog item %q not found", id)
	}
	return item, nil
}
