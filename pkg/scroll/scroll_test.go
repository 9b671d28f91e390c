package scroll

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, c Cursor) [][]string {
	t.Helper()
	var batches [][]string
	for c.HasNext() {
		batch, err := c.Next(context.Background())
		require.NoError(t, err)
		batches = append(batches, batch)
	}
	return batches
}

func TestStatic_BatchesIDs(t *testing.T) {
	c, err := Static{}.Open(context.Background(), Request{
		Query: "a, b,c\nd e",
		Size:  2,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, drain(t, c))
}

func TestStatic_EmptyQueryIsInvalid(t *testing.T) {
	_, err := Static{}.Open(context.Background(), Request{Query: " , "})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStatic_NextAfterClose(t *testing.T) {
	c, err := Static{}.Open(context.Background(), Request{Query: "a b", Size: 1})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.False(t, c.HasNext())
	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, ErrCursorClosed)
}

type recordingService struct {
	got Request
}

func (s *recordingService) Open(_ context.Context, req Request) (Cursor, error) {
	s.got = req
	return Static{}.Open(context.Background(), req)
}

func TestRegistry_DefaultStrategy(t *testing.T) {
	doc := &recordingService{}
	r := NewRegistry(StrategyDocument)
	r.Register(StrategyDocument, doc)
	r.Register(StrategyStatic, Static{})

	c, err := r.Open(context.Background(), Request{Query: "x", Size: 10})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, StrategyDocument, doc.got.Strategy)
	assert.Equal(t, DefaultKeepAlive, doc.got.KeepAlive)
	assert.Equal(t, []Strategy{StrategyDocument, StrategyStatic}, r.Strategies())
}

func TestRegistry_UnknownStrategy(t *testing.T) {
	r := NewRegistry(StrategyStatic)
	r.Register(StrategyStatic, Static{})

	_, err := r.Open(context.Background(), Request{Query: "x", Strategy: "nxql"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.False(t, IsQueryError(err))
}
