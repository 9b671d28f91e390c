package index

import (
	"context"
	"strings"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/bulkflow/pkg/scroll"
	blevescroll "github.com/hashicorp-forge/bulkflow/pkg/scroll/bleve"
)

func TestLoad(t *testing.T) {
	idx, err := blevescroll.NewMemIndex()
	require.NoError(t, err)
	docs := blevescroll.NewWithIndexes(map[string]bleve.Index{blevescroll.DefaultRepository: idx}, nil)
	defer func() { _ = docs.Close() }()

	input := strings.Join([]string{
		`{"id":"doc-1","type":"note"}`,
		``,
		`{"id":"doc-2","type":"file"}`,
		`{"id":"doc-3","type":"note"}`,
	}, "\n")

	ctx := context.Background()
	n, err := Load(ctx, strings.NewReader(input), docs, blevescroll.DefaultRepository, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cursor, err := docs.Open(ctx, scroll.Request{Query: "type:note", Size: 10})
	require.NoError(t, err)
	defer func() { _ = cursor.Close() }()

	ids, err := cursor.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-3"}, ids)
}

func TestLoad_Errors(t *testing.T) {
	idx, err := blevescroll.NewMemIndex()
	require.NoError(t, err)
	docs := blevescroll.NewWithIndexes(map[string]bleve.Index{blevescroll.DefaultRepository: idx}, nil)
	defer func() { _ = docs.Close() }()

	tests := []struct {
		name       string
		input      string
		repository string
	}{
		{"not json", `{nope`, blevescroll.DefaultRepository},
		{"missing id", `{"type":"note"}`, blevescroll.DefaultRepository},
		{"numeric id", `{"id":7}`, blevescroll.DefaultRepository},
		{"unknown repository", `{"id":"doc-1"}`, "archive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), strings.NewReader(tt.input), docs, tt.repository, 10)
			assert.Error(t, err)
		})
	}
}
