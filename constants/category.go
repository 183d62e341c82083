package constants

import (
	"strings"
)

// Category is the restaurant expense taxonomy the auto-categorizer assigns to
// bank transactions.
type Category string

const (
	FoodAndBeverage      Category = "FoodAndBeverage"
	AlcoholPurchases     Category = "AlcoholPurchases"
	Labor                Category = "Labor"
	Rent                 Category = "Rent"
	Utilities            Category = "Utilities"
	Equipment            Category = "Equipment"
	SmallwaresSupplies   Category = "SmallwaresSupplies"
	Marketing            Category = "Marketing"
	Repairs              Category = "Repairs"
	SoftwareSubscription Category = "SoftwareSubscription"
	Insurance            Category = "Insurance"
	Taxes                Category = "Taxes"
	Other                Category = "Other"
)

var allCategories = []Category{
	FoodAndBeverage,
	AlcoholPurchases,
	Labor,
	Rent,
	Utilities,
	Equipment,
	SmallwaresSupplies,
	Marketing,
	Repairs,
	SoftwareSubscription,
	Insurance,
	Taxes,
	Other,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps a free-form model label onto the taxonomy.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Category{
		"food":         FoodAndBeverage,
		"produce":      FoodAndBeverage,
		"beverage":     FoodAndBeverage,
		"cogs":         FoodAndBeverage,
		"liquor":       AlcoholPurchases,
		"beer":         AlcoholPurchases,
		"wine":         AlcoholPurchases,
		"payroll":      Labor,
		"wages":        Labor,
		"staff":        Labor,
		"lease":        Rent,
		"electricity":  Utilities,
		"gas":          Utilities,
		"water":        Utilities,
		"advertising":  Marketing,
		"maintenance":  Repairs,
		"saas":         SoftwareSubscription,
		"subscription": SoftwareSubscription,
		"pos":          SoftwareSubscription,
		"smallwares":   SmallwaresSupplies,
		"supplies":     SmallwaresSupplies,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	// check if it matches any category string
	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return Other, false
}
