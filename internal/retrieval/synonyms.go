package retrieval

import (
	"sort"
	"strings"
)

// #region synonyms
// DefaultSynonyms is the refund vocabulary used when no table is configured.
// Keys are base terms; a token matching either a base or one of its
// synonyms expands to the whole group.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"cancelar":  {"cancelamento", "desistir", "desistência", "anular"},
		"reembolso": {"reembolsar", "devolução", "devolver", "estorno", "estornar"},
		"erro":      {"errado", "incorreto", "falha", "problema", "defeito"},
		"pedido":    {"compra", "ordem", "encomenda"},
		"entrega":   {"entregar", "entregue", "chegou", "recebido", "receber"},
		"cobrado":   {"cobrança", "cobrar", "pago", "pagamento", "valor"},
		"atraso":    {"atrasado", "demorou", "demora", "lento", "devagar"},
		"fraude":    {"fraudulento", "suspeito", "invadido", "hackeado"},
		"duplicado": {"duplicada", "dobrado", "repetido"},
	}
}

// SynonymTable maps a normalized token to its bounded expansion set.
type SynonymTable struct {
	expansions map[string][]string
}

// NewSynonymTable normalizes raw and keeps at most maxPerToken expansions per
// token (0 means unbounded). Multi-word entries are ignored since tokens are
// single words. Expansion order is deterministic: base first, then synonyms in
// declared order.
func NewSynonymTable(raw map[string][]string, maxPerToken int) SynonymTable {
	bases := make([]string, 0, len(raw))
	for b := range raw {
		bases = append(bases, b)
	}
	sort.Strings(bases)

	table := SynonymTable{expansions: make(map[string][]string)}
	for _, base := range bases {
		group := singleTerms(append([]string{base}, raw[base]...))
		if len(group) < 2 {
			continue
		}
		for _, member := range group {
			for _, other := range group {
				if other == member {
					continue
				}
				table.add(member, other, maxPerToken)
			}
		}
	}
	return table
}

func (s SynonymTable) add(token, synonym string, limit int) {
	cur := s.expansions[token]
	if limit > 0 && len(cur) >= limit {
		return
	}
	for _, c := range cur {
		if c == synonym {
			return
		}
	}
	s.expansions[token] = append(cur, synonym)
}

// Expand returns the synonyms of token, nil when it has none.
func (s SynonymTable) Expand(token string) []string {
	return s.expansions[token]
}

func singleTerms(words []string) []string {
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		n := strings.TrimSpace(normalize(w))
		if n == "" || strings.ContainsRune(n, ' ') || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// #endregion synonyms
