package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const (
	TableToken = "{table}"
	IDToken    = "{id}"
)

var ErrMissingID = errors.New("template requires a record id")

// Template is SQL with unresolved {table} and {id} tokens. Values are
// already bound as $1..$n in Args.
type Template struct {
	SQL       string
	Args      []any
	Returning bool
}

// Statement is a resolved template, ready to execute.
type Statement struct {
	SQL       string
	Args      []any
	Table     string
	Returning bool
}

// Resolve replaces {table} with the quoted identifier and {id} with the next
// bind placeholder. Quoted sections are copied verbatim, so a column named
// "{id}" or "{table}" is never rewritten.
func (t Template) Resolve(table string, id *int64) (Statement, error) {
	if strings.TrimSpace(table) == "" {
		return Statement{}, errors.New("empty table name")
	}
	args := append([]any(nil), t.Args...)
	quotedTable := pq.QuoteIdentifier(table)
	idPlaceholder := ""

	src := t.SQL
	var b strings.Builder
	b.Grow(len(src) + len(quotedTable))
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case strings.HasPrefix(src[i:], TableToken):
			b.WriteString(quotedTable)
			i += len(TableToken) - 1
		case strings.HasPrefix(src[i:], IDToken):
			if id == nil {
				return Statement{}, ErrMissingID
			}
			if idPlaceholder == "" {
				args = append(args, *id)
				idPlaceholder = fmt.Sprintf("$%d", len(args))
			}
			b.WriteString(idPlaceholder)
			i += len(IDToken) - 1
		default:
			b.WriteByte(c)
		}
	}
	return Statement{SQL: b.String(), Args: args, Table: table, Returning: t.Returning}, nil
}
