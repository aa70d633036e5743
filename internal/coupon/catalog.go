package coupon

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// CatalogConfig holds configuration for building the coupon table.
type CatalogConfig struct {
	// FilePaths lists rule files in precedence order; later files override earlier ones.
	FilePaths []string

	// IncludeDefaults seeds the table with the built-in rules before any file is merged.
	IncludeDefaults bool
}

// DefaultCatalogConfig returns a configuration that uses only the built-in rules.
func DefaultCatalogConfig() *CatalogConfig {
	return &CatalogConfig{IncludeDefaults: true}
}

// NewCatalog loads every configured rule file concurrently and merges them into one RuleSet.
func NewCatalog(ctx context.Context, cfg *CatalogConfig, loader Loader, logger zerolog.Logger) (RuleSet, error) {
	if cfg == nil {
		cfg = DefaultCatalogConfig()
	}

	logger = logger.With().Str("component", "coupon-catalog").Logger()

	merged := NewMapRuleSet(16)
	if cfg.IncludeDefaults || len(cfg.FilePaths) == 0 {
		merged.merge(DefaultRuleSet())
	}

	type loadResult struct {
		index int
		set   RuleSet
		err   error
	}

	resultChan := make(chan loadResult, len(cfg.FilePaths))
	var wg sync.WaitGroup

	for i, filePath := range cfg.FilePaths {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()

			set, err := loader.Load(ctx, path)
			resultChan <- loadResult{index: index, set: set, err: err}
		}(i, filePath)
	}

	wg.Wait()
	close(resultChan)

	results := make([]loadResult, len(cfg.FilePaths))
	for result := range resultChan {
		results[result.index] = result
	}

	for i, result := range results {
		if result.err != nil {
			logger.Error().
				Err(result.err).
				Str("file", cfg.FilePaths[i]).
				Msg("failed to load coupon rule file")
			return nil, fmt.Errorf("failed to load coupon rule file %s: %w", cfg.FilePaths[i], result.err)
		}
		merged.merge(result.set)
	}

	logger.Info().
		Int("file_count", len(cfg.FilePaths)).
		Int("total_rules", merged.Size()).
		Msg("coupon catalog ready")

	return merged, nil
}
