package repository

import (
	"strings"
)

func isReserved(token string) bool {
	switch strings.ToUpper(token) {
	case "AND", "OR", "NOT", "NEAR":
		return true
	}
	return false
}

// BuildMatchQuery turns user input into an FTS5 prefix query. Boolean
// keywords and tokens that already carry a wildcard or quote pass through;
// every other token gets a trailing '*'.
func BuildMatchQuery(raw string) string {
	tokens := strings.Fields(raw)
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch {
		case isReserved(tok):
			parts = append(parts, tok)
		case strings.ContainsAny(tok, `*"`):
			parts = append(parts, tok)
		default:
			parts = append(parts, tok+"*")
		}
	}
	return strings.Join(parts, " ")
}

// BuildLikePatterns returns one lower-cased, escaped %substring% pattern per
// non-keyword token, for use with ESCAPE '\'.
func BuildLikePatterns(raw string) []string {
	var out []string
	for _, tok := range strings.Fields(raw) {
		trimmed := strings.Trim(tok, `"'`)
		if strings.TrimSpace(trimmed) == "" || isReserved(trimmed) {
			continue
		}
		trimmed = strings.ReplaceAll(trimmed, "*", "")
		out = append(out, "%"+escapeLike(strings.ToLower(trimmed))+"%")
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
