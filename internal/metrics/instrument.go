package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyperjump/rootcause/internal/embedding"
	"github.com/hyperjump/rootcause/internal/llm"
)

// Middleware records request count and latency. Routes are labeled with the chi
// pattern so ids do not inflate cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func observe(kind, provider string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderDurationSeconds.WithLabelValues(kind, provider, status).Observe(time.Since(start).Seconds())
}

type instrumentedEmbedder struct {
	embedding.Embedder
	name string
}

// InstrumentEmbedder times every call to e under the given provider name.
func InstrumentEmbedder(e embedding.Embedder, name string) embedding.Embedder {
	return &instrumentedEmbedder{Embedder: e, name: name}
}

func (e *instrumentedEmbedder) Embed(ctx context.Context, text string) (emb []float32, err error) {
	defer func(start time.Time) { observe("embedding", e.name, start, err) }(time.Now())
	return e.Embedder.Embed(ctx, text)
}

func (e *instrumentedEmbedder) EmbedBatch(ctx context.Context, texts []string) (embs [][]float32, err error) {
	defer func(start time.Time) { observe("embedding", e.name, start, err) }(time.Now())
	return e.Embedder.EmbedBatch(ctx, texts)
}

type instrumentedProvider struct {
	llm.QuestionProvider
}

// InstrumentProvider times every Propose call of p.
func InstrumentProvider(p llm.QuestionProvider) llm.QuestionProvider {
	return &instrumentedProvider{QuestionProvider: p}
}

func (p *instrumentedProvider) Propose(ctx context.Context, req llm.QuestionRequest) (resp *llm.QuestionResponse, err error) {
	defer func(start time.Time) { observe("llm", p.Name(), start, err) }(time.Now())
	return p.QuestionProvider.Propose(ctx, req)
}
