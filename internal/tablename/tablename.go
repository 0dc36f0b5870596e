// Package tablename derives CARTO table names from model type names.
package tablename

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Build pluralizes typeName and prepends prefix + "_" when a prefix is set
func Build(typeName, prefix string) string {
	name := inflection.Plural(strings.TrimSpace(typeName))
	if p := strings.TrimSpace(prefix); p != "" {
		return p + "_" + name
	}
	return name
}
