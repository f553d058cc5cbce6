// Package suggest offers "did you mean" names from the search index and
// keeps that index in step with the catalog.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout     = errors.New("SEARCH_TIMEOUT")
)

type Suggester struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

func NewSuggester(client *elasticsearch.Client, index string, timeout time.Duration, log logger.Logger) *Suggester {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Suggester{
		client:  client,
		index:   index,
		timeout: timeout,
		logger:  log.With(map[string]interface{}{"component": "suggester"}),
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.CatalogRow `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Suggest returns the closest indexed name, or "" when nothing better than
// the input itself is found.
func (s *Suggester) Suggest(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{
		"size":    1,
		"_source": []string{"name"},
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"name": map[string]interface{}{
					"query":     name,
					"fuzziness": "AUTO",
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrSearchTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", fmt.Errorf("%w: %s", ErrSearchQueryFailed, res.Status())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrSearchQueryFailed, err)
	}
	if len(r.Hits.Hits) == 0 {
		return "", nil
	}

	suggestion := r.Hits.Hits[0].Source.Name
	if strings.EqualFold(suggestion, name) {
		return "", nil
	}
	return suggestion, nil
}

// Reindex writes rows into the index keyed by lowercased name, at most
// concurrency requests at a time. It returns how many rows were indexed,
// also when it stops early.
func (s *Suggester) Reindex(ctx context.Context, rows []models.CatalogRow, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	var indexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, row := range rows {
		g.Go(func() error {
			if err := s.indexRow(gctx, row); err != nil {
				return err
			}
			indexed.Add(1)
			return nil
		})
	}

	err := g.Wait()
	n := int(indexed.Load())
	if err != nil {
		return n, err
	}

	s.logger.Info("reindex complete", map[string]interface{}{
		"index":     s.index,
		"documents": n,
	})
	return n, nil
}

func (s *Suggester) indexRow(ctx context.Context, row models.CatalogRow) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: strings.ToLower(row.Name),
		Body:       bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: index %s: %v", ErrSearchQueryFailed, row.Name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: index %s: %s", ErrSearchQueryFailed, row.Name, res.Status())
	}
	return nil
}
