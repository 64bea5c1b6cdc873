// Package search ranks bookmark documents against a query by blending a
// lexical substring score with embedding cosine similarity.
//
// Everything here is pure: Rank works on a snapshot of documents and never
// touches the store.
package search

import (
	"math"
	"sort"
	"strings"

	"github.com/Aman-CERP/markrag/internal/store"
)

// Blend of the base (metadata) and content similarity when a document has
// a content embedding.
const (
	BaseVectorShare    = 0.7
	ContentVectorShare = 0.3
)

// Result is one ranked document with its score breakdown.
type Result struct {
	Document     store.Document
	Score        float64
	VectorScore  float64
	LexicalScore float64
}

// Query describes one ranking request.
type Query struct {
	Text string
	// Embedding is nil when no query embedding is available; vector
	// scores are then 0.
	Embedding    []float32
	VectorWeight float64

	Offset int
	// Limit <= 0 returns everything from Offset on.
	Limit int
}

// Ranked is the paged result of Rank.
type Ranked struct {
	Results []Result
	// TotalCount is the size of the full ranked set, independent of paging.
	TotalCount int
	// Matched counts results sharing at least one token with the query.
	Matched int
}

// Tokenize lowercases text, turns every run of characters outside [a-z0-9]
// into a separator and returns the non-empty tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// LexicalScore is the fraction of tokens found as substrings of searchText.
func LexicalScore(tokens []string, searchText string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(searchText, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths, empty vectors and zero-norm vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	// Clamp float drift so the result stays within [-1, 1].
	return math.Max(-1, math.Min(1, dot/denom))
}

// VectorScore scores doc against a query embedding. A document without a
// metadata embedding has a base similarity of 0.
func VectorScore(query []float32, doc *store.Document) float64 {
	if len(query) == 0 {
		return 0
	}
	base := CosineSimilarity(query, doc.Embedding)
	if len(doc.ContentEmbedding) > 0 {
		return BaseVectorShare*base + ContentVectorShare*CosineSimilarity(query, doc.ContentEmbedding)
	}
	return base
}

// Rank scores every document, sorts by combined score (stable, descending)
// and returns the requested page.
func Rank(q Query, docs []store.Document) Ranked {
	tokens := Tokenize(q.Text)
	w := q.VectorWeight

	results := make([]Result, len(docs))
	for i := range docs {
		lexical := LexicalScore(tokens, docs[i].SearchText)
		vector := VectorScore(q.Embedding, &docs[i])
		results[i] = Result{
			Document:     docs[i],
			Score:        w*vector + (1-w)*lexical,
			VectorScore:  vector,
			LexicalScore: lexical,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	matched := 0
	for i := range results {
		if results[i].LexicalScore > 0 {
			matched++
		}
	}

	return Ranked{
		Results:    page(results, q.Offset, q.Limit),
		TotalCount: len(results),
		Matched:    matched,
	}
}

func page(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
