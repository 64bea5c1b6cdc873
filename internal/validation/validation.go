// Package validation measures search quality against a query set.
//
// A query set is a YAML file of queries with the bookmarks expected near
// the top of the results. Core queries gate a run; extended queries are
// reported only; negative queries (no expectations) just have to answer
// without error.
package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/service"
)

// Tier groups queries by how much a failure matters.
type Tier string

const (
	TierCore     Tier = "core"
	TierExtended Tier = "extended"
	TierNegative Tier = "negative"
)

// DefaultTopN is how deep into the results an expectation may match.
const DefaultTopN = 5

// QuerySpec is one query and the bookmarks it should surface. Each
// expectation matches a result whose ID equals it or whose URL or title
// contains it (case-insensitive).
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Query    string   `yaml:"query" json:"query"`
	Expected []string `yaml:"expected" json:"expected,omitempty"`
	Notes    string   `yaml:"notes" json:"notes,omitempty"`
	Tier     Tier     `yaml:"-" json:"tier"`
}

// QuerySet is the parsed query file.
type QuerySet struct {
	Core     []QuerySpec `yaml:"core"`
	Extended []QuerySpec `yaml:"extended"`
	Negative []QuerySpec `yaml:"negative"`
}

// All returns every query in run order with its tier set.
func (qs *QuerySet) All() []QuerySpec {
	all := make([]QuerySpec, 0, len(qs.Core)+len(qs.Extended)+len(qs.Negative))
	for _, group := range []struct {
		tier  Tier
		specs []QuerySpec
	}{{TierCore, qs.Core}, {TierExtended, qs.Extended}, {TierNegative, qs.Negative}} {
		for _, s := range group.specs {
			s.Tier = group.tier
			all = append(all, s)
		}
	}
	return all
}

// LoadQueries reads and checks a query file.
func LoadQueries(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeInvalidInput, "cannot read query file", err).
			WithSuggestion("Pass the path of a YAML file with core/extended/negative sections")
	}
	return ParseQueries(data)
}

// ParseQueries parses a query set. Core and extended queries need at
// least one expectation.
func ParseQueries(data []byte) (*QuerySet, error) {
	var qs QuerySet
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return nil, merrors.New(merrors.ErrCodeInvalidInput, "invalid query file", err)
	}
	for i, s := range qs.All() {
		if strings.TrimSpace(s.Query) == "" {
			return nil, merrors.New(merrors.ErrCodeInvalidInput,
				fmt.Sprintf("query %d (%s) is empty", i+1, s.ID), nil)
		}
		if s.Tier != TierNegative && len(s.Expected) == 0 {
			return nil, merrors.New(merrors.ErrCodeInvalidInput,
				fmt.Sprintf("%s query %q has no expected results", s.Tier, s.Query), nil)
		}
	}
	return &qs, nil
}

// Searcher runs a search. service.Service and the daemon client both
// satisfy it.
type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
}

// TestResult is the outcome of one query.
type TestResult struct {
	Spec       QuerySpec `json:"spec"`
	Passed     bool      `json:"passed"`
	DurationMS float64   `json:"duration_ms"`
	TopResults []string  `json:"top_results"`
	// MatchedAt is the 1-based rank of the first match, 0 when none.
	MatchedAt int    `json:"matched_at"`
	Error     string `json:"error,omitempty"`
}

// TierSummary counts passes within a tier.
type TierSummary struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

// Result is a full run.
type Result struct {
	Timestamp time.Time             `json:"timestamp"`
	TopN      int                   `json:"top_n"`
	Results   []TestResult          `json:"results"`
	Tiers     map[Tier]*TierSummary `json:"tiers"`
	// MRR is the mean reciprocal rank over core and extended queries.
	MRR float64 `json:"mrr"`
}

// Passed reports whether every core query passed.
func (r *Result) Passed() bool {
	s := r.Tiers[TierCore]
	return s == nil || s.Passed == s.Total
}

// Validator runs query sets through a Searcher.
type Validator struct {
	searcher Searcher
	topN     int
}

// NewValidator returns a Validator checking the first topN results.
// topN <= 0 uses DefaultTopN.
func NewValidator(searcher Searcher, topN int) *Validator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Validator{searcher: searcher, topN: topN}
}

// RunQuery executes a single query.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	result := TestResult{Spec: spec, TopResults: []string{}}

	start := time.Now()
	resp, err := v.searcher.Search(ctx, service.SearchRequest{Query: spec.Query, Limit: v.topN})
	result.DurationMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for _, r := range resp.Results {
		result.TopResults = append(result.TopResults, r.URL)
	}
	if spec.Tier == TierNegative {
		result.Passed = true
		return result
	}
	result.MatchedAt = firstMatch(resp.Results, spec.Expected)
	result.Passed = result.MatchedAt > 0
	return result
}

// Run executes every query in qs in order.
func (v *Validator) Run(ctx context.Context, qs *QuerySet) *Result {
	res := &Result{
		Timestamp: time.Now(),
		TopN:      v.topN,
		Tiers:     make(map[Tier]*TierSummary),
	}

	var rr float64
	ranked := 0
	for _, spec := range qs.All() {
		tr := v.RunQuery(ctx, spec)
		res.Results = append(res.Results, tr)

		sum := res.Tiers[spec.Tier]
		if sum == nil {
			sum = &TierSummary{}
			res.Tiers[spec.Tier] = sum
		}
		sum.Total++
		if tr.Passed {
			sum.Passed++
		}

		if spec.Tier != TierNegative {
			ranked++
			if tr.MatchedAt > 0 {
				rr += 1 / float64(tr.MatchedAt)
			}
		}
	}
	if ranked > 0 {
		res.MRR = rr / float64(ranked)
	}
	return res
}

func firstMatch(results []service.SearchResult, expected []string) int {
	for i, r := range results {
		url := strings.ToLower(r.URL)
		title := strings.ToLower(r.Title)
		for _, exp := range expected {
			e := strings.ToLower(exp)
			if r.ID == exp || strings.Contains(url, e) || strings.Contains(title, e) {
				return i + 1
			}
		}
	}
	return 0
}
