package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
)

const prefix = "carto"

// Key identifies the cached result of st against one generation of table.
// A bump of the table generation orphans every key built for the old one.
func Key(table string, gen int64, st sqlgen.Statement) string {
	return fmt.Sprintf("%s:%s:g%d:q=%016x", prefix, sanitizeTable(table), gen, Hash(st))
}

// GenKey holds the write generation counter of table.
func GenKey(table string) string {
	return prefix + ":" + sanitizeTable(table) + ":gen"
}

// Hash digests the SQL text and its typed arguments.
func Hash(st sqlgen.Statement) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(collapseASCIIWhitespace(st.SQL))
	for _, a := range st.Args {
		_, _ = fmt.Fprintf(d, "\x00%T:%v", a, a)
	}
	return d.Sum64()
}

func sanitizeTable(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// ':' is the segment separator, so it is replaced as well
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
