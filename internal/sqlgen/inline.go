package sqlgen

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Inline renders the statement as a single SQL string with every $n
// placeholder replaced by an escaped literal. The CARTO SQL API has no bind
// channel over GET, so this is the only safe way to ship values there.
func Inline(st Statement) (string, error) {
	var b strings.Builder
	b.Grow(len(st.SQL) + 16*len(st.Args))

	sql := st.SQL
	var quote byte // current quote character, 0 outside quotes
	for i := 0; i < len(sql); i++ {
		c := sql[i]
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
		case c == '$' && i+1 < len(sql) && isDigit(sql[i+1]):
			j := i + 1
			for j < len(sql) && isDigit(sql[j]) {
				j++
			}
			n, _ := strconv.Atoi(sql[i+1 : j])
			if n < 1 || n > len(st.Args) {
				return "", fmt.Errorf("placeholder $%d has no argument (%d given)", n, len(st.Args))
			}
			lit, err := Literal(st.Args[n-1])
			if err != nil {
				return "", fmt.Errorf("placeholder $%d: %w", n, err)
			}
			b.WriteString(lit)
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Literal renders a bound value as a PostgreSQL literal.
func Literal(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return pq.QuoteLiteral(t), nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case json.Number:
		if _, err := strconv.ParseFloat(t.String(), 64); err != nil {
			return "", fmt.Errorf("%w: malformed number %q", ErrUnsupportedValue, t.String())
		}
		return t.String(), nil
	case int:
		return strconv.FormatInt(int64(t), 10), nil
	case int8:
		return strconv.FormatInt(int64(t), 10), nil
	case int16:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return formatFloat(float64(t), 32)
	case float64:
		return formatFloat(t, 64)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite number", ErrUnsupportedValue)
	}
	return strconv.FormatFloat(f, 'g', -1, bits), nil
}
