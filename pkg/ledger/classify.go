package ledger

import (
	"fmt"
	"strings"
)

// CategoryRule matches product names containing any of its keywords
// (case-insensitive substring match).
type CategoryRule struct {
	Category string
	Keywords []string
}

// CategoryOther is the fallback for products no rule matches.
const CategoryOther = "Other"

// categoryRules is evaluated in order and the first matching rule wins.
// Keyword overlaps are resolved by this ordering: "cream" appears under
// both Dairy and Personal Care, so ice cream and milk cream classify as
// Dairy while face cream only matches when no dairy keyword fires first.
var categoryRules = []CategoryRule{
	{Category: "Bakery", Keywords: []string{"bread", "cake", "biscuit", "scone", "doughnut"}},
	{Category: "Dairy", Keywords: []string{"milk", "yogurt", "yoghurt", "cheese", "butter", "cream", "ghee"}},
	{Category: "Beverages", Keywords: []string{"soda", "juice", "water", "tea", "coffee", "cocoa", "drink"}},
	{Category: "Grains & Cereals", Keywords: []string{"rice", "maize", "flour", "wheat", "cereal", "pasta", "spaghetti", "ugali"}},
	{Category: "Meat & Fish", Keywords: []string{"beef", "chicken", "fish", "pork", "mutton", "sausage", "tilapia"}},
	{Category: "Fruits & Vegetables", Keywords: []string{"tomato", "onion", "banana", "mango", "cabbage", "potato", "sukuma", "avocado", "orange"}},
	{Category: "Snacks", Keywords: []string{"crisps", "chips", "sweets", "chocolate", "popcorn", "chevda"}},
	{Category: "Personal Care", Keywords: []string{"soap", "lotion", "shampoo", "toothpaste", "sanitizer", "deodorant"}},
	{Category: "Cleaning", Keywords: []string{"detergent", "bleach", "cleaner", "mop", "scourer", "disinfectant"}},
	{Category: "Cooking", Keywords: []string{"oil", "salt", "sugar", "spice", "margarine", "fat"}},
}

// CategoryRules returns the classification rules in evaluation order.
func CategoryRules() []CategoryRule {
	out := make([]CategoryRule, len(categoryRules))
	copy(out, categoryRules)
	return out
}

// Categories returns every category name in rule order, fallback last.
func Categories() []string {
	out := make([]string, 0, len(categoryRules)+1)
	for _, rule := range categoryRules {
		out = append(out, rule.Category)
	}
	return append(out, CategoryOther)
}

// ClassifyProduct assigns a category from the product name. The same
// rules drive both live classification and the historical backfill, so
// re-running either is idempotent.
func ClassifyProduct(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range categoryRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Category
			}
		}
	}
	return CategoryOther
}

// CategoryCaseSQL renders the rules as a SQL CASE expression over the
// given column, preserving rule order so SQL and Go agree on overlaps.
func CategoryCaseSQL(column string) string {
	var b strings.Builder
	b.WriteString("CASE\n")
	for _, rule := range categoryRules {
		conds := make([]string, len(rule.Keywords))
		for i, kw := range rule.Keywords {
			conds[i] = fmt.Sprintf("LOWER(%s) LIKE '%%%s%%'", column, kw)
		}
		fmt.Fprintf(&b, "    WHEN %s THEN '%s'\n", strings.Join(conds, " OR "), rule.Category)
	}
	fmt.Fprintf(&b, "    ELSE '%s'\nEND", CategoryOther)
	return b.String()
}
