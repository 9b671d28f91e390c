// Package bleve implements the document scroll strategy on embedded bleve
// indexes, one index per repository.
package bleve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/bulkflow/pkg/scroll"
)

// DefaultRepository is used when a request names no repository.
const DefaultRepository = "default"

// Config contains Bleve configuration.
type Config struct {
	IndexPath    string   // Base directory, one "<repository>.bleve" index per repository
	Repositories []string // Repositories to open or create

	Logger hclog.Logger
}

// Service scrolls bleve indexes. It implements scroll.Service.
type Service struct {
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	logger  hclog.Logger
	now     func() time.Time
}

// New opens or creates one index per configured repository.
func New(cfg Config) (*Service, error) {
	if cfg.IndexPath == "" {
		return nil, fmt.Errorf("bleve index path required")
	}
	if err := os.MkdirAll(cfg.IndexPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	repos := cfg.Repositories
	if len(repos) == 0 {
		repos = []string{DefaultRepository}
	}

	indexes := make(map[string]bleve.Index, len(repos))
	for _, repo := range repos {
		idx, err := openOrCreateIndex(filepath.Join(cfg.IndexPath, repo+".bleve"), documentMapping())
		if err != nil {
			for _, opened := range indexes {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("failed to open index of repository %q: %w", repo, err)
		}
		indexes[repo] = idx
	}

	return NewWithIndexes(indexes, cfg.Logger), nil
}

// NewWithIndexes wraps already opened indexes keyed by repository.
func NewWithIndexes(indexes map[string]bleve.Index, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		indexes: indexes,
		logger:  logger.Named("bleve-scroll"),
		now:     time.Now,
	}
}

// NewMemIndex returns an in-memory index with the document mapping.
func NewMemIndex() (bleve.Index, error) {
	return bleve.NewMemOnly(documentMapping())
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

func documentMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	textFieldMapping := bleve.NewTextFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("owner", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("path", keywordFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Repositories returns the repository names, sorted.
func (s *Service) Repositories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexBatch adds or updates documents of repository, keyed by document id.
func (s *Service) IndexBatch(ctx context.Context, repository string, docs map[string]any) error {
	idx, err := s.index("IndexBatch", repository)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for id, doc := range docs {
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("failed to add document to batch: %w", err)
		}
	}
	return idx.Batch(batch)
}

// Open implements scroll.Service. The first page is fetched eagerly so that
// query and repository errors surface here rather than on Next.
func (s *Service) Open(ctx context.Context, req scroll.Request) (scroll.Cursor, error) {
	idx, err := s.index("Open", req.Repository)
	if err != nil {
		return nil, err
	}

	q, err := buildQuery(req.Query)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size <= 0 {
		size = 100
	}
	keepAlive := req.KeepAlive
	if keepAlive <= 0 {
		keepAlive = scroll.DefaultKeepAlive
	}

	c := &cursor{
		index:     idx,
		query:     q,
		size:      size,
		keepAlive: keepAlive,
		now:       s.now,
	}
	first, err := c.fetch(ctx)
	if err != nil {
		return nil, &scroll.Error{Op: "Open", Err: err, Msg: "first page"}
	}
	c.pending = first

	s.logger.Debug("scroll opened",
		"repository", req.Repository,
		"username", req.Username,
		"total", c.total,
		"size", size,
	)
	return c, nil
}

// Close closes every index.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result error
	for repo, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close index of repository %q: %w", repo, err))
		}
	}
	s.indexes = map[string]bleve.Index{}
	return result
}

func (s *Service) index(op, repository string) (bleve.Index, error) {
	if repository == "" {
		repository = DefaultRepository
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[repository]
	if !ok {
		return nil, &scroll.Error{Op: op, Err: scroll.ErrNotFound, Msg: fmt.Sprintf("repository %q", repository)}
	}
	return idx, nil
}

func buildQuery(raw string) (query.Query, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return nil, &scroll.Error{Op: "Open", Err: scroll.ErrInvalidQuery, Msg: "empty query"}
	case "*":
		return bleve.NewMatchAllQuery(), nil
	}

	q, err := bleve.NewQueryStringQuery(raw).Parse()
	if err != nil {
		return nil, &scroll.Error{Op: "Open", Err: scroll.ErrInvalidQuery, Msg: err.Error()}
	}
	return q, nil
}

// cursor pages through hits sorted by document id using search-after.
type cursor struct {
	index     bleve.Index
	query     query.Query
	size      int
	keepAlive time.Duration
	now       func() time.Time

	pending  []string
	after    []string
	total    uint64
	fetched  uint64
	done     bool
	closed   bool
	lastUsed time.Time
}

func (c *cursor) fetch(ctx context.Context) ([]string, error) {
	req := bleve.NewSearchRequestOptions(c.query, c.size, 0, false)
	req.SortBy([]string{"_id"})
	if c.after != nil {
		req.SetSearchAfter(c.after)
	}

	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}

	c.total = res.Total
	c.fetched += uint64(len(ids))
	if len(ids) < c.size || c.fetched >= c.total {
		c.done = true
	}
	if len(ids) > 0 {
		c.after = []string{ids[len(ids)-1]}
	}
	c.lastUsed = c.now()
	return ids, nil
}

func (c *cursor) HasNext() bool {
	if c.closed {
		return false
	}
	return c.pending != nil || !c.done
}

func (c *cursor) Next(ctx context.Context) ([]string, error) {
	if c.closed {
		return nil, &scroll.Error{Op: "Next", Err: scroll.ErrCursorClosed}
	}
	if c.pending != nil {
		batch := c.pending
		c.pending = nil
		return batch, nil
	}
	if c.done {
		return nil, nil
	}
	if idle := c.now().Sub(c.lastUsed); idle > c.keepAlive {
		return nil, &scroll.Error{Op: "Next", Err: scroll.ErrExpired, Msg: fmt.Sprintf("idle for %s", idle)}
	}

	batch, err := c.fetch(ctx)
	if err != nil {
		return nil, &scroll.Error{Op: "Next", Err: err}
	}
	return batch, nil
}

func (c *cursor) Close() error {
	c.closed = true
	c.pending = nil
	return nil
}
