package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/rootcause/internal/models"
)

const (
	fieldComponent   = "component"
	fieldModel       = "model"
	fieldDescription = "fault_description"
	fieldCause       = "root_cause"
	fieldAction      = "corrective_action"
)

var textFields = []string{fieldDescription, fieldCause, fieldAction}

// BleveIndex implements RecordIndex using Bleve. Records are keyed by fault description,
// which is unique across the knowledge base.
type BleveIndex struct {
	mu    sync.RWMutex
	path  string
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index in
// memory. If you change the index mapping in code, remove the index directory to force a
// rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	index, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{path: path, index: index}, nil
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so part names match exactly.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt(fieldComponent, keywordFieldMapping)
	docMapping.AddFieldMappingsAt(fieldModel, keywordFieldMapping)

	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	return im
}

func openOrCreate(path string) (bleve.Index, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return index, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return index, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

type recordDoc struct {
	Component        string `json:"component"`
	Model            string `json:"model"`
	FaultDescription string `json:"fault_description"`
	RootCause        string `json:"root_cause"`
	CorrectiveAction string `json:"corrective_action"`
}

// Index adds or replaces records in one batch.
func (b *BleveIndex) Index(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return indexBatch(ctx, b.index, records)
}

func indexBatch(ctx context.Context, index bleve.Index, records []models.Record) error {
	batch := index.NewBatch()
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := r.Canonical()
		if c.FaultDescription == "" {
			continue
		}
		doc := recordDoc{
			Component:        c.Component,
			Model:            c.Model,
			FaultDescription: c.FaultDescription,
			RootCause:        c.RootCause,
			CorrectiveAction: c.CorrectiveAction,
		}
		if err := batch.Index(c.FaultDescription, doc); err != nil {
			return fmt.Errorf("failed to batch record: %w", err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index records: %w", err)
	}
	return nil
}

// Reset replaces the whole index contents with records.
func (b *BleveIndex) Reset(ctx context.Context, records []models.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close Bleve index: %w", err)
	}
	if b.path != "" {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("failed to remove Bleve index: %w", err)
		}
	}
	index, err := openOrCreate(b.path)
	if err != nil {
		return err
	}
	b.index = index
	return indexBatch(ctx, index, records)
}

// Search finds records matching query.
// When opts is nil or DescriptionBoost and PhraseBoost are <= 1, a single match over all
// text fields is used. Otherwise the description and cause/action fields are queried
// separately and merged with additive scoring, a term coverage penalty and a phrase boost.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	o := SearchOptions{DescriptionBoost: 1, PhraseBoost: 1, Fuzziness: 1}
	if opts != nil {
		o.Component = models.CanonicalLabel(opts.Component)
		o.FuzzyEnabled = opts.FuzzyEnabled
		if opts.DescriptionBoost > 0 {
			o.DescriptionBoost = opts.DescriptionBoost
		}
		if opts.PhraseBoost > 0 {
			o.PhraseBoost = opts.PhraseBoost
		}
		if opts.Fuzziness > 0 {
			o.Fuzziness = opts.Fuzziness
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if o.DescriptionBoost <= 1 && o.PhraseBoost <= 1 {
		return b.searchSingle(ctx, query, limit, o)
	}
	return b.searchWithBoosts(ctx, query, limit, o)
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, size int) (map[string]float64, map[string]models.Record, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.Fields = []string{"*"}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	scores := make(map[string]float64, len(res.Hits))
	records := make(map[string]models.Record, len(res.Hits))
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
		records[hit.ID] = recordFromFields(hit.ID, hit.Fields)
	}
	return scores, records, nil
}

// searchSingle runs one query over all text fields.
func (b *BleveIndex) searchSingle(ctx context.Context, query string, limit int, o SearchOptions) ([]Hit, error) {
	scores, records, err := b.run(ctx, b.filtered(b.textQuery(query, "", o), o), limit)
	if err != nil {
		return nil, err
	}
	return rank(scores, records, limit), nil
}

// searchWithBoosts merges description and cause/action scores:
// score = (descriptionScore * DescriptionBoost + otherScore) * coverage^2 * phrase.
func (b *BleveIndex) searchWithBoosts(ctx context.Context, query string, limit int, o SearchOptions) ([]Hit, error) {
	reqSize := max(limit*2, 50)
	terms := tokenizeQuery(query)

	descScores, records, err := b.run(ctx, b.filtered(b.textQuery(query, fieldDescription, o), o), reqSize)
	if err != nil {
		return nil, err
	}
	other := bleve.NewDisjunctionQuery(
		b.textQuery(query, fieldCause, o),
		b.textQuery(query, fieldAction, o),
	)
	otherScores, otherRecords, err := b.run(ctx, b.filtered(other, o), reqSize)
	if err != nil {
		return nil, err
	}
	for id, r := range otherRecords {
		records[id] = r
	}

	coverage := map[string]int{}
	if len(terms) > 1 {
		coverage = b.termCoverage(ctx, terms, reqSize, o)
	}
	phrase := map[string]bool{}
	if o.PhraseBoost > 1 && len(terms) > 1 {
		phrase = b.phraseMatches(ctx, query, reqSize, o)
	}

	scores := make(map[string]float64, len(records))
	for id := range records {
		score := descScores[id]*o.DescriptionBoost + otherScores[id]
		if len(terms) > 1 {
			// Partial matches are penalized by the squared share of terms matched.
			matched := max(coverage[id], 1)
			c := float64(matched) / float64(len(terms))
			score *= c * c
		}
		if phrase[id] {
			score *= o.PhraseBoost
		}
		scores[id] = score
	}
	return rank(scores, records, limit), nil
}

func rank(scores map[string]float64, records map[string]models.Record, limit int) []Hit {
	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, Hit{Record: records[id], Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.FaultDescription < hits[j].Record.FaultDescription
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// textQuery builds a match query, or a disjunction of fuzzy term queries when fuzzy
// matching is on. An empty field searches all fields.
func (b *BleveIndex) textQuery(query, field string, o SearchOptions) blevequery.Query {
	terms := tokenizeQuery(query)
	if !o.FuzzyEnabled || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(o.Fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// filtered restricts q to the component in o, if any.
func (b *BleveIndex) filtered(q blevequery.Query, o SearchOptions) blevequery.Query {
	if o.Component == "" {
		return q
	}
	tq := bleve.NewTermQuery(o.Component)
	tq.SetField(fieldComponent)
	return bleve.NewConjunctionQuery(q, tq)
}

// termCoverage counts how many distinct query terms each record matches.
func (b *BleveIndex) termCoverage(ctx context.Context, terms []string, reqSize int, o SearchOptions) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		scores, _, err := b.run(ctx, b.filtered(b.textQuery(term, "", o), o), reqSize)
		if err != nil {
			continue
		}
		for id := range scores {
			coverage[id]++
		}
	}
	return coverage
}

// phraseMatches finds records where the query appears as a phrase in any text field.
func (b *BleveIndex) phraseMatches(ctx context.Context, query string, reqSize int, o SearchOptions) map[string]bool {
	matches := make(map[string]bool)
	for _, f := range textFields {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(f)
		scores, _, err := b.run(ctx, b.filtered(pq, o), reqSize)
		if err != nil {
			continue
		}
		for id := range scores {
			matches[id] = true
		}
	}
	return matches
}

func recordFromFields(id string, fields map[string]interface{}) models.Record {
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	r := models.Record{
		Component:        str(fieldComponent),
		Model:            str(fieldModel),
		FaultDescription: str(fieldDescription),
		RootCause:        str(fieldCause),
		CorrectiveAction: str(fieldAction),
	}
	if r.FaultDescription == "" {
		r.FaultDescription = id
	}
	return r
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// DocCount returns the number of indexed records.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
