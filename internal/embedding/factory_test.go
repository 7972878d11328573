package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Providers(t *testing.T) {
	e, err := New(Options{Provider: ProviderHashing, Dimensions: 64}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HashingEmbedder{}, e)
	assert.Equal(t, 64, e.Dimensions())

	e, err = New(Options{Provider: ProviderHashing, CacheSize: 10}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)

	e, err = New(Options{Provider: ProviderOpenAI, OpenAIKey: "sk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())

	_, err = New(Options{Provider: ProviderOpenAI}, nil)
	assert.Error(t, err)

	_, err = New(Options{Provider: "word2vec"}, nil)
	assert.ErrorContains(t, err, "unknown embedding provider")
}
