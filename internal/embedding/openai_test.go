package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fakeOpenAI(t *testing.T, dims int, requests *[]openAIEmbeddingRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*requests = append(*requests, req)

		var resp openAIEmbeddingResponse
		// Reverse order to check the client sorts by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dims)
			v[i%dims] = 2
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: v})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIEmbedder_BatchesAndOrders(t *testing.T) {
	var requests []openAIEmbeddingRequest
	srv := fakeOpenAI(t, 4, &requests)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		Model:      "custom-model",
		Dimensions: 4,
		BatchSize:  2,
	}, zap.NewNop())
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Len(t, requests, 2)
	assert.Equal(t, []string{"a", "b"}, requests[0].Input)
	assert.Equal(t, []string{"c"}, requests[1].Input)

	assert.Equal(t, []float32{1, 0, 0, 0}, out[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, out[1])
	assert.Equal(t, []float32{1, 0, 0, 0}, out[2])
}

func TestOpenAIEmbedder_DimensionsForKnownModel(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())
	assert.False(t, e.sendDimensions)

	e, err = NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk", Dimensions: 256}, nil)
	require.NoError(t, err)
	assert.True(t, e.sendDimensions)
}

func TestOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{}, nil)
	assert.Error(t, err)
}

func TestOpenAIEmbedder_WrongDimensions(t *testing.T) {
	var requests []openAIEmbeddingRequest
	srv := fakeOpenAI(t, 3, &requests)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk", BaseURL: srv.URL, Dimensions: 8}, nil)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "dimensions")
}
