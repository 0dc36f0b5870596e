// Package executor defines the backends that run statements built by sqlgen.
package executor

import (
	"context"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/sqlgen"
)

type Interface interface {
	// QueryFeatures runs a read and returns GeoJSON features.
	QueryFeatures(ctx context.Context, st sqlgen.Statement) (model.FeatureCollection, error)
	// Exec runs a write and returns the affected row metadata.
	Exec(ctx context.Context, st sqlgen.Statement) (model.WriteResult, error)
	// CheckWrite reports whether writes can be issued with the current configuration.
	CheckWrite() error
}
