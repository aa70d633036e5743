package coupon

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for reading gzipped rule files from disk.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based rule loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "coupon-loader").Logger(),
	}
}

// Load reads a gzipped rule file and returns a RuleSet.
// The file is expected to contain one JSON rule per line.
func (l *fileLoader) Load(ctx context.Context, filePath string) (RuleSet, error) {
	l.logger.Info().Str("file", filePath).Msg("loading coupon rule file")

	file, err := os.Open(filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to open coupon rule file")
		return nil, fmt.Errorf("failed to open coupon rule file %s: %w", filePath, err)
	}
	defer file.Close()

	set, err := readRules(ctx, file)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("error reading coupon rule file")
		return nil, fmt.Errorf("error reading coupon rule file %s: %w", filePath, err)
	}

	l.logger.Info().
		Str("file", filePath).
		Int("rules_loaded", set.Size()).
		Msg("coupon rule file loaded successfully")

	return set, nil
}

// readRules decodes a gzipped JSON-lines stream into a rule set.
func readRules(ctx context.Context, r io.Reader) (*mapRuleSet, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	set := NewMapRuleSet(16)

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10_000 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rule Rule
		if err := json.Unmarshal(line, &rule); err != nil {
			return nil, fmt.Errorf("line %d: invalid rule: %w", lineNo, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		set.Add(rule)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return set, nil
}
