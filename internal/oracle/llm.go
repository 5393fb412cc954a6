package oracle

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/llm"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
	"github.com/TobiSchelling/reviewtrends/internal/taxonomy"
)

// Options tunes the LLM oracle.
type Options struct {
	ExtractionBatchSize int
	MappingBatchSize    int
	Workers             int
	ConfidenceThreshold float64
	CacheSize           int
	ValidationContext   int
}

// LLMOracle answers topic judgements with a language model.
type LLMOracle struct {
	provider llm.Provider
	opts     Options
	mappings *lru.Cache[string, TopicMapping]
}

// NewLLM creates an oracle backed by provider.
func NewLLM(provider llm.Provider, opts Options) (*LLMOracle, error) {
	if opts.ExtractionBatchSize <= 0 {
		opts.ExtractionBatchSize = 20
	}
	if opts.MappingBatchSize <= 0 {
		opts.MappingBatchSize = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.ValidationContext <= 0 {
		opts.ValidationContext = 20
	}

	cache, err := lru.New[string, TopicMapping](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating mapping cache: %w", err)
	}
	return &LLMOracle{provider: provider, opts: opts, mappings: cache}, nil
}

// ExtractTopics extracts phrases batch by batch, several batches at a time.
// A failed batch yields empty results for its reviews.
func (o *LLMOracle) ExtractTopics(ctx context.Context, reviews []database.Review) ([]ExtractionResult, error) {
	results := make([]ExtractionResult, len(reviews))
	for i, r := range reviews {
		results[i] = ExtractionResult{ReviewID: r.ID, ExtractedTopics: []string{}}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	size := o.opts.ExtractionBatchSize
	for start := 0; start < len(reviews); start += size {
		end := min(start+size, len(reviews))
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			o.extractBatch(gctx, reviews[start:end], results[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *LLMOracle) extractBatch(ctx context.Context, batch []database.Review, out []ExtractionResult) {
	var ask []database.Review
	for _, r := range batch {
		if r.Content != "" {
			ask = append(ask, r)
		}
	}
	if len(ask) == 0 {
		return
	}

	raw, err := o.provider.Generate(ctx, extractionSystem, extractionPrompt(ask))
	if err != nil {
		logging.Errorf("topic extraction failed for %d reviews: %v", len(ask), err)
		return
	}

	var parsed []ExtractionResult
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		logging.Warnf("unparseable extraction response for %d reviews: %v", len(ask), err)
		return
	}

	byID := make(map[string][]string, len(parsed))
	for _, p := range parsed {
		byID[p.ReviewID] = append(byID[p.ReviewID], p.ExtractedTopics...)
	}
	for i := range out {
		out[i].ExtractedTopics = cleanPhrases(byID[out[i].ReviewID])
	}
}

// MapTopics maps each distinct phrase, consulting the cache first.
func (o *LLMOracle) MapTopics(ctx context.Context, phrases []string, tax *database.Taxonomy) ([]TopicMapping, error) {
	unique := cleanPhrases(phrases)
	found := make(map[string]TopicMapping, len(unique))

	var pending []string
	for _, p := range unique {
		if m, ok := o.mappings.Get(o.cacheKey(tax, p)); ok {
			found[p] = m
			continue
		}
		pending = append(pending, p)
	}
	if len(pending) > 0 {
		logging.Debugf("mapping %d phrases (%d cached)", len(pending), len(unique)-len(pending))
	}

	batches := chunk(pending, o.opts.MappingBatchSize)
	answers := make([]map[string]TopicMapping, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, batch := range batches {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			answers[i] = o.mapBatch(gctx, batch, tax)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, batch := range batches {
		for _, p := range batch {
			m, ok := answers[i][p]
			if !ok {
				found[p] = TopicMapping{ExtractedTopic: p, Reasoning: "no mapping returned"}
				continue
			}
			found[p] = m
			o.mappings.Add(o.cacheKey(tax, p), m)
		}
	}

	out := make([]TopicMapping, len(unique))
	for i, p := range unique {
		out[i] = found[p]
	}
	return out, nil
}

// mapBatch returns the gated mappings the model produced for batch, keyed by
// phrase. A failed call returns nil so nothing is cached.
func (o *LLMOracle) mapBatch(ctx context.Context, batch []string, tax *database.Taxonomy) map[string]TopicMapping {
	if tax == nil || len(tax.Topics) == 0 {
		return nil
	}

	raw, err := o.provider.Generate(ctx, mappingSystem, mappingPrompt(batch, tax))
	if err != nil {
		logging.Errorf("topic mapping failed for %d phrases: %v", len(batch), err)
		return nil
	}

	var parsed []TopicMapping
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		logging.Warnf("unparseable mapping response for %d phrases: %v", len(batch), err)
		return nil
	}

	want := make(map[string]bool, len(batch))
	for _, p := range batch {
		want[p] = true
	}

	out := make(map[string]TopicMapping, len(parsed))
	for _, m := range parsed {
		m.ExtractedTopic = taxonomy.NormalizePhrase(m.ExtractedTopic)
		if !want[m.ExtractedTopic] {
			continue
		}
		if _, dup := out[m.ExtractedTopic]; dup {
			continue
		}
		out[m.ExtractedTopic] = Gate(m, tax, o.opts.ConfidenceThreshold)
	}
	return out
}

// ValidateTopic asks whether phrase should become a topic. Any failure is
// an invalid verdict.
func (o *LLMOracle) ValidateTopic(ctx context.Context, phrase string, existing []string) (Validation, error) {
	phrase = taxonomy.NormalizePhrase(phrase)
	invalid := func(reason string) Validation {
		return Validation{Topic: phrase, Reasoning: reason}
	}

	raw, err := o.provider.Generate(ctx, validationSystem, validationPrompt(phrase, existing, o.opts.ValidationContext))
	if err != nil {
		if ctx.Err() != nil {
			return Validation{}, ctx.Err()
		}
		logging.Errorf("topic validation failed for %q: %v", phrase, err)
		return invalid("validation call failed"), nil
	}

	var v Validation
	if err := llm.DecodeJSON(raw, &v); err != nil {
		logging.Warnf("unparseable validation response for %q: %v", phrase, err)
		return invalid("unparseable validation response"), nil
	}
	v.Topic = phrase
	return v, nil
}

func (o *LLMOracle) cacheKey(tax *database.Taxonomy, phrase string) string {
	if tax == nil {
		return "|0|" + phrase
	}
	return fmt.Sprintf("%s|%d|%s", tax.AppID, len(tax.Topics), phrase)
}

// cleanPhrases normalizes, drops empties and removes duplicates, keeping
// first-seen order.
func cleanPhrases(phrases []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		p = taxonomy.NormalizePhrase(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
