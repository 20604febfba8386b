package promptcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type promptDoc struct {
	Name     string            `json:"name" msgpack:"name"`
	Version  int               `json:"version" msgpack:"version"`
	Template string            `json:"template" msgpack:"template"`
	Config   map[string]string `json:"config" msgpack:"config"`
}

var samplePrompt = promptDoc{
	Name:     "greeting",
	Version:  2,
	Template: "Hello {{name}}, welcome to {{product}}!",
	Config:   map[string]string{"model": "gpt-4", "temperature": "0.7"},
}

func TestJSONSerializer(t *testing.T) {
	s := JSONSerializer{}

	data, err := s.Marshal(samplePrompt)
	require.NoError(t, err)

	var got promptDoc
	require.NoError(t, s.Unmarshal(data, &got))
	assert.Equal(t, samplePrompt, got)

	assert.Error(t, s.Unmarshal([]byte("{broken"), &got))
}

func TestMsgpackSerializer(t *testing.T) {
	s := MsgpackSerializer{}

	data, err := s.Marshal(samplePrompt)
	require.NoError(t, err)

	var got promptDoc
	require.NoError(t, s.Unmarshal(data, &got))
	assert.Equal(t, samplePrompt, got)
}

func TestCompressedSerializer(t *testing.T) {
	s := NewCompressedSerializer(JSONSerializer{})

	data, err := s.Marshal(samplePrompt)
	require.NoError(t, err)

	var got promptDoc
	require.NoError(t, s.Unmarshal(data, &got))
	assert.Equal(t, samplePrompt, got)

	// Not gzip: must error, not panic.
	assert.Error(t, s.Unmarshal([]byte("plain text"), &got))
}
