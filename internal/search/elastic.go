package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
)

type ElasticConfig struct {
	URL      string
	User     string
	Password string
	Index    string
}

// Elastic keeps a searchable copy of name and description per product. Hits
// are resolved back through the database so callers always see current
// price and stock, and products deactivated since indexing are dropped.
type Elastic struct {
	Client *elasticsearch.Client
	Index  string
	Repo   *repo.GormRepo
}

type productDoc struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	AgeRange    string `json:"age_range"`
}

func NewClient(cfg ElasticConfig, log *slog.Logger) (*elasticsearch.Client, error) {
	log.Info("es_connect", "url", cfg.URL, "user", cfg.User)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("es: new client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es: info: %s: %s", res.Status(), body)
	}

	log.Info("es_connected")
	return client, nil
}

func NewElastic(ctx context.Context, client *elasticsearch.Client, index string, r *repo.GormRepo) (*Elastic, error) {
	e := &Elastic{Client: client, Index: index, Repo: r}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Elastic) ensureIndex(ctx context.Context) error {
	res, err := e.Client.Indices.Exists([]string{e.Index}, e.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("es: index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := `{"mappings":{"properties":{
		"id":{"type":"keyword"},
		"name":{"type":"text"},
		"description":{"type":"text"},
		"category":{"type":"keyword"},
		"type":{"type":"keyword"},
		"age_range":{"type":"keyword"}}}}`
	res, err = e.Client.Indices.Create(e.Index,
		e.Client.Indices.Create.WithContext(ctx),
		e.Client.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		return fmt.Errorf("es: create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 400 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("es: create index: %s: %s", res.Status(), body)
	}
	return nil
}

func (e *Elastic) Search(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	q = sanitizeQuery(q)
	if q == "" {
		return 0, []models.Product{}, nil
	}

	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     q,
				"fields":    []string{"name^2", "description"},
				"fuzziness": "AUTO",
			},
		},
		"from":    offset,
		"size":    limit,
		"_source": []string{"id"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("es: encode query: %w", err)
	}

	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.Index),
		e.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("es: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("es: search: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source productDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("es: decode: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		id, err := uuid.Parse(hit.Source.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	found, err := e.Repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return 0, nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	prods := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && p.Active {
			prods = append(prods, p)
		}
	}
	return r.Hits.Total.Value, prods, nil
}

func (e *Elastic) IndexProduct(ctx context.Context, p *models.Product) error {
	if !p.Active {
		return e.RemoveProduct(ctx, p.ID)
	}

	data, err := json.Marshal(productDoc{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Type:        p.Type,
		AgeRange:    p.AgeRange,
	})
	if err != nil {
		return err
	}

	res, err := e.Client.Index(e.Index, bytes.NewReader(data),
		e.Client.Index.WithContext(ctx),
		e.Client.Index.WithDocumentID(p.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("es: index %s: %w", p.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es: index %s: %s", p.ID, res.Status())
	}
	return nil
}

func (e *Elastic) RemoveProduct(ctx context.Context, id uuid.UUID) error {
	res, err := e.Client.Delete(e.Index, id.String(), e.Client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("es: delete %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("es: delete %s: %s", id, res.Status())
	}
	return nil
}
