package coupon

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// mapRuleSet implements RuleSet using a map for O(1) lookups.
type mapRuleSet struct {
	rules map[string]Rule
}

// NewMapRuleSet creates a new map-based rule set.
func NewMapRuleSet(capacity int) *mapRuleSet {
	return &mapRuleSet{
		rules: make(map[string]Rule, capacity),
	}
}

// DefaultRuleSet returns the built-in coupon table.
func DefaultRuleSet() RuleSet {
	set := NewMapRuleSet(2)
	set.Add(Rule{Code: "SAVE10", PercentOff: decimal.NewFromInt(10)})
	set.Add(Rule{Code: "NEW2025", WaiveFees: true})
	return set
}

// Lookup returns the rule for code.
func (s *mapRuleSet) Lookup(code string) (Rule, bool) {
	rule, ok := s.rules[code]
	return rule, ok
}

// Size returns the number of rules in the set.
func (s *mapRuleSet) Size() int {
	return len(s.rules)
}

// Add inserts or replaces a rule.
func (s *mapRuleSet) Add(rule Rule) {
	s.rules[rule.Code] = rule
}

// Rules returns every rule in the set.
func (s *mapRuleSet) Rules() []Rule {
	rules := make([]Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	return rules
}

// merge copies every rule of other into s, replacing rules with the same code.
func (s *mapRuleSet) merge(other RuleSet) {
	for _, rule := range other.Rules() {
		s.rules[rule.Code] = rule
	}
}

// Validate checks that a rule is usable by the pricing engine.
func (r Rule) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("coupon code is required")
	}
	if r.PercentOff.IsNegative() || r.PercentOff.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("coupon %s: percent_off must be between 0 and 100", r.Code)
	}
	if r.WaiveFees == r.PercentOff.IsPositive() {
		return fmt.Errorf("coupon %s: exactly one of percent_off or waive_fees must be set", r.Code)
	}
	return nil
}
