package rag

import "strings"

// expansion widens a query with regulation vocabulary before embedding when
// both trigger groups match. The corpus phrases double-major rules in terms
// students rarely use, so their questions embed too far from the relevant
// chunks without the extra terms.
type expansion struct {
	subjects []string
	aspects  []string
	extra    string
}

var expansions = []expansion{
	{
		subjects: []string{"çift anadal", "çap"},
		aspects:  []string{"koşul", "şart", "nasıl", "kimler", "başvuramaz", "yapamaz"},
		extra:    "ÇAP başvuru koşulları AGNO GANO genel not ortalaması en az kaç olmalı anadal başarı sırası şartı kabul",
	},
	{
		subjects: []string{"çap", "çift anadal"},
		aspects:  []string{"kalırsa", "başarısız", "ara sınıf", "düşürse", "etkilemez"},
		extra:    "ÇAP başarısızlık mezuniyet etkilemez ana dal transkript ayrı program",
	},
}

// expandQuery returns the search text for a query. The expanded form is used
// for embedding only; caching and display keep the original.
func expandQuery(query string) string {
	lower := strings.ToLower(query)
	for _, e := range expansions {
		if containsAny(lower, e.subjects) && containsAny(lower, e.aspects) {
			return query + " " + e.extra
		}
	}
	return query
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
