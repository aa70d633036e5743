// Command genrules writes sample gzipped coupon rule files for local runs.
//
// Files are merged in the order given to COUPON_RULE_FILES; a later file overrides a
// code defined by an earlier one:
//
//	COUPON_RULE_FILES=data/coupons/base.gz,data/coupons/seasonal.gz
package main

import (
	"compress/gzip"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"storefront/internal/coupon"

	"github.com/shopspring/decimal"
)

func main() {
	dataDir := flag.String("dir", "data/coupons", "output directory")
	flag.Parse()

	// Create directory if it doesn't exist
	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	files := map[string][]coupon.Rule{
		"base.gz": {
			{Code: "SAVE10", PercentOff: decimal.NewFromInt(10)},
			{Code: "FREESHIP", WaiveFees: true},
			{Code: "WELCOME5", PercentOff: decimal.NewFromInt(5)},
		},
		"seasonal.gz": {
			{Code: "WELCOME5", PercentOff: decimal.NewFromInt(7)}, // overrides base
			{Code: "DIWALI25", PercentOff: decimal.NewFromInt(25)},
			{Code: "HALFOFF", PercentOff: decimal.NewFromInt(50)},
		},
	}

	for filename, rules := range files {
		filePath := filepath.Join(*dataDir, filename)

		if err := writeRuleFile(filePath, rules); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d rules\n", filePath, len(rules))
	}
}

func writeRuleFile(filePath string, rules []coupon.Rule) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	enc := json.NewEncoder(gzipWriter)
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return err
		}
		if err := enc.Encode(rule); err != nil {
			return fmt.Errorf("failed to write rule %s: %w", rule.Code, err)
		}
	}

	return nil
}
