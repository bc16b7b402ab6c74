// Package router classifies raw queries before they reach retrieval or
// generation: adversarial input is blocked, conversational input gets a
// canned response, everything else passes through.
package router

import (
	"log/slog"
)

// Router is the pre-retrieval query classifier. Pattern compilation and
// keyword normalization happen once at construction; the router itself is
// immutable afterwards and safe for concurrent use.
type Router struct {
	rules       []rule
	categories  []Category
	allKeywords map[string]bool
	logger      *slog.Logger
}

// New builds a router over the given chitchat categories. Passing nil
// categories selects DefaultCategories.
func New(categories []Category, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if categories == nil {
		categories = DefaultCategories()
	}

	all := make(map[string]bool)
	for i := range categories {
		c := &categories[i]
		normalized := make([]string, 0, len(c.Keywords))
		c.keywordSet = make(map[string]bool, len(c.Keywords))
		for _, kw := range c.Keywords {
			n := Normalize(kw)
			if n == "" || c.keywordSet[n] {
				continue
			}
			normalized = append(normalized, n)
			c.keywordSet[n] = true
			all[n] = true
		}
		c.Keywords = normalized
	}

	logger.Info("query router ready",
		"categories", len(categories),
		"keywords", len(all),
		"injection_rules", len(injectionRules),
	)

	return &Router{
		rules:       injectionRules,
		categories:  categories,
		allKeywords: all,
		logger:      logger,
	}
}

// Stats summarizes the static rule and keyword sets.
type Stats struct {
	Categories        int            `json:"total_categories"`
	Keywords          int            `json:"total_patterns"`
	InjectionRules    int            `json:"injection_patterns"`
	KeywordsByCatName map[string]int `json:"categories"`
}

// Stats returns counts of the loaded configuration.
func (r *Router) Stats() Stats {
	byCat := make(map[string]int, len(r.categories))
	total := 0
	for i := range r.categories {
		byCat[r.categories[i].Name] = len(r.categories[i].Keywords)
		total += len(r.categories[i].Keywords)
	}
	return Stats{
		Categories:        len(r.categories),
		Keywords:          total,
		InjectionRules:    len(r.rules),
		KeywordsByCatName: byCat,
	}
}

// Debug reports how a query would be handled. Diagnostic surface only.
type Debug struct {
	Original         string  `json:"original"`
	Normalized       string  `json:"normalized"`
	WordCount        int     `json:"word_count"`
	InExactSet       bool    `json:"is_in_exact_set"`
	IsInjection      bool    `json:"is_injection"`
	IsChitchat       bool    `json:"is_chitchat"`
	ChitchatResponse string  `json:"chitchat_response,omitempty"`
	ClosestKeyword   string  `json:"closest_pattern,omitempty"`
	Similarity       float64 `json:"similarity"`
}

// DebugQuery classifies a query and reports the decision inputs, including
// the closest keyword by edit-distance ratio.
func (r *Router) DebugQuery(query string) Debug {
	normalized := Normalize(query)
	resp, isChitchat := r.ChitchatResponse(query)

	closest, maxSim := "", 0.0
	for i := range r.categories {
		c := &r.categories[i]
		for _, kw := range c.Keywords {
			if sim := similarityRatio(normalized, kw); sim > maxSim {
				maxSim = sim
				closest = c.Name + ": " + kw
			}
		}
	}

	return Debug{
		Original:         query,
		Normalized:       normalized,
		WordCount:        wordCount(normalized),
		InExactSet:       r.allKeywords[normalized],
		IsInjection:      r.IsInjection(query),
		IsChitchat:       isChitchat,
		ChitchatResponse: resp,
		ClosestKeyword:   closest,
		Similarity:       maxSim,
	}
}
