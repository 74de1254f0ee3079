package constants

import (
	"strings"
)

type Category string

const (
	Dairy      Category = "Nabiał"
	Bread      Category = "Pieczywo"
	Meat       Category = "Mięso"
	Vegetables Category = "Warzywa"
	Fruit      Category = "Owoce"
	Sweets     Category = "Słodycze"
	Drinks     Category = "Napoje"
	Other      Category = "Inne"
)

var allCategories = []Category{
	Dairy,
	Bread,
	Meat,
	Vegetables,
	Fruit,
	Sweets,
	Drinks,
	Other,
}

// lookup is keyed by the lowercased, trimmed category value.
var lookup = func() map[string]Category {
	m := make(map[string]Category, len(allCategories)*2)
	for _, c := range allCategories {
		m[normalizeKey(string(c))] = c
	}
	// english labels the model sometimes answers with
	synonyms := map[string]Category{
		"dairy":      Dairy,
		"bread":      Bread,
		"bakery":     Bread,
		"meat":       Meat,
		"vegetables": Vegetables,
		"fruit":      Fruit,
		"fruits":     Fruit,
		"sweets":     Sweets,
		"drinks":     Drinks,
		"beverages":  Drinks,
		"other":      Other,
	}
	for k, v := range synonyms {
		m[k] = v
	}
	return m
}()

func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize resolves free text to a known category. Unknown or empty input
// yields Other and false; it never fails.
func Canonicalize(input string) (Category, bool) {
	key := normalizeKey(input)
	if key == "" {
		return Other, false
	}
	if cat, ok := lookup[key]; ok {
		return cat, true
	}
	return Other, false
}

func (c Category) Valid() bool {
	for _, cat := range allCategories {
		if cat == c {
			return true
		}
	}
	return false
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
