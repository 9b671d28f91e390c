package bulk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionRegistry(t *testing.T) {
	r, err := NewActionRegistry(0,
		Action{Name: "setProperties", BucketSize: 50},
		Action{Name: "trash", InputStream: "trash-workers"},
	)
	require.NoError(t, err)

	size, err := r.BucketSizeFor("setProperties")
	require.NoError(t, err)
	assert.Equal(t, 50, size)

	size, err = r.BucketSizeFor("trash")
	require.NoError(t, err)
	assert.Equal(t, DefaultBucketSize, size)

	stream, err := r.InputStreamFor("setProperties")
	require.NoError(t, err)
	assert.Equal(t, "bulk-set-properties", stream)

	stream, err = r.InputStreamFor("trash")
	require.NoError(t, err)
	assert.Equal(t, "trash-workers", stream)

	a, ok := r.Lookup("setProperties")
	require.True(t, ok)
	assert.Equal(t, 50, a.BatchSize)

	assert.Equal(t, []string{"setProperties", "trash"}, r.Actions())
	assert.Equal(t, []string{"bulk-set-properties", "trash-workers"}, r.InputStreams())

	_, err = r.BucketSizeFor("csvExport")
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = r.InputStreamFor("csvExport")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestActionRegistry_Invalid(t *testing.T) {
	_, err := NewActionRegistry(10, Action{})
	assert.Error(t, err)

	_, err = NewActionRegistry(10, Action{Name: "trash"}, Action{Name: "trash"})
	assert.Error(t, err)
}

func TestCommand_Validate(t *testing.T) {
	valid := &Command{ID: "a", Action: "trash", Query: "*"}
	assert.NoError(t, valid.Validate())

	defaultBucket := &Command{ID: "a", Action: "trash", Query: "*", BucketSize: -1}
	assert.NoError(t, defaultBucket.Validate())

	tests := []struct {
		name string
		cmd  *Command
	}{
		{"missing id", &Command{Action: "trash", Query: "*"}},
		{"missing action", &Command{ID: "a", Query: "*"}},
		{"missing query", &Command{ID: "a", Action: "trash"}},
		{"negative query limit", &Command{ID: "a", Action: "trash", Query: "*", QueryLimit: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cmd.Validate())
		})
	}
}
