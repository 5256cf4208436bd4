package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// parseEnv fills a tagged struct from the process environment.
func parseEnv[T any]() (T, error) {
	var v T
	if err := env.Parse(&v); err != nil {
		return v, fmt.Errorf("parse env: %w", err)
	}
	return v, nil
}
