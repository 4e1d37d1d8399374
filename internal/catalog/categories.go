package catalog

import (
	"encoding/json"
	"strings"
)

// Category is a top-level navigation node.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Subcategory belongs to exactly one category.
type Subcategory struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	CategoryID int    `json:"categoryId"`
}

type rawCategory struct {
	ID         flexNumber `json:"id"`
	Name       string     `json:"name"`
	CategoryID flexNumber `json:"category_id"`
}

func parseCategories(body []byte) ([]Category, int, error) {
	items, err := unwrapList(body)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Category, 0, len(items))
	skipped := 0
	for _, item := range items {
		var raw rawCategory
		id, ok := 0, false
		if json.Unmarshal(item, &raw) == nil {
			id, ok = raw.ID.integer()
		}
		if !ok || id < 1 {
			skipped++
			continue
		}
		out = append(out, Category{ID: id, Name: strings.TrimSpace(raw.Name)})
	}
	return out, skipped, nil
}

// parseSubcategories keeps the records belonging to categoryID. Records that
// omit category_id are assumed to belong to it, since the route was scoped.
func parseSubcategories(body []byte, categoryID int) ([]Subcategory, int, error) {
	items, err := unwrapList(body)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Subcategory, 0, len(items))
	skipped := 0
	for _, item := range items {
		var raw rawCategory
		id, ok := 0, false
		if json.Unmarshal(item, &raw) == nil {
			id, ok = raw.ID.integer()
		}
		if !ok || id < 1 {
			skipped++
			continue
		}
		parent := categoryID
		if v, set := raw.CategoryID.integer(); set {
			parent = v
		}
		if parent != categoryID {
			continue
		}
		out = append(out, Subcategory{ID: id, Name: strings.TrimSpace(raw.Name), CategoryID: parent})
	}
	return out, skipped, nil
}
