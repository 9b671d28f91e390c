package bleve

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/bulkflow/pkg/scroll"
)

func newTestService(t *testing.T, docs int) *Service {
	t.Helper()

	idx, err := NewMemIndex()
	require.NoError(t, err)

	svc := NewWithIndexes(map[string]bleve.Index{DefaultRepository: idx}, nil)
	t.Cleanup(func() { _ = svc.Close() })

	batch := make(map[string]any, docs)
	for i := 0; i < docs; i++ {
		docType := "note"
		if i%2 == 1 {
			docType = "file"
		}
		batch[fmt.Sprintf("doc-%02d", i)] = map[string]any{
			"title": fmt.Sprintf("document %d", i),
			"type":  docType,
		}
	}
	require.NoError(t, svc.IndexBatch(context.Background(), DefaultRepository, batch))
	return svc
}

func drain(t *testing.T, c scroll.Cursor) [][]string {
	t.Helper()
	var batches [][]string
	for c.HasNext() {
		batch, err := c.Next(context.Background())
		require.NoError(t, err)
		if len(batch) > 0 {
			batches = append(batches, batch)
		}
	}
	return batches
}

func TestService_ScrollsAllDocumentsInIDOrder(t *testing.T) {
	svc := newTestService(t, 10)

	c, err := svc.Open(context.Background(), scroll.Request{Query: "*", Size: 4})
	require.NoError(t, err)
	defer c.Close()

	batches := drain(t, c)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"doc-00", "doc-01", "doc-02", "doc-03"}, batches[0])
	assert.Equal(t, []string{"doc-04", "doc-05", "doc-06", "doc-07"}, batches[1])
	assert.Equal(t, []string{"doc-08", "doc-09"}, batches[2])
}

func TestService_FieldQuery(t *testing.T) {
	svc := newTestService(t, 6)

	c, err := svc.Open(context.Background(), scroll.Request{Query: "type:file", Size: 10})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, [][]string{{"doc-01", "doc-03", "doc-05"}}, drain(t, c))
}

func TestService_NoMatch(t *testing.T) {
	svc := newTestService(t, 3)

	c, err := svc.Open(context.Background(), scroll.Request{Query: "type:missing", Size: 10})
	require.NoError(t, err)
	defer c.Close()

	assert.Empty(t, drain(t, c))
	assert.False(t, c.HasNext())
}

func TestService_OpenErrors(t *testing.T) {
	svc := newTestService(t, 1)

	tests := []struct {
		name    string
		req     scroll.Request
		wantErr error
	}{
		{
			name:    "unknown repository",
			req:     scroll.Request{Query: "*", Repository: "archive"},
			wantErr: scroll.ErrNotFound,
		},
		{
			name:    "empty query",
			req:     scroll.Request{Query: "  "},
			wantErr: scroll.ErrInvalidQuery,
		},
		{
			name:    "unparsable query",
			req:     scroll.Request{Query: "^"},
			wantErr: scroll.ErrInvalidQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Open(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, scroll.IsQueryError(err))
		})
	}
}

func TestCursor_ExpiresAfterKeepAlive(t *testing.T) {
	svc := newTestService(t, 4)
	now := time.Now()
	svc.now = func() time.Time { return now }

	c, err := svc.Open(context.Background(), scroll.Request{Query: "*", Size: 2, KeepAlive: time.Second})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Next(context.Background())
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, scroll.ErrExpired)
}

func TestCursor_CloseBeforeDrain(t *testing.T) {
	svc := newTestService(t, 4)

	c, err := svc.Open(context.Background(), scroll.Request{Query: "*", Size: 2})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.False(t, c.HasNext())
	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, scroll.ErrCursorClosed)
}

func TestNew_OpensRepositoriesOnDisk(t *testing.T) {
	dir := t.TempDir()

	svc, err := New(Config{IndexPath: dir, Repositories: []string{"default", "archive"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", "default"}, svc.Repositories())
	require.NoError(t, svc.IndexBatch(context.Background(), "archive", map[string]any{"a": map[string]any{"title": "x"}}))
	require.NoError(t, svc.Close())

	// Reopening finds the existing index.
	svc, err = New(Config{IndexPath: dir, Repositories: []string{"archive"}})
	require.NoError(t, err)
	defer svc.Close()

	c, err := svc.Open(context.Background(), scroll.Request{Query: "*", Repository: "archive", Size: 10})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, [][]string{{"a"}}, drain(t, c))
}
