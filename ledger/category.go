package ledger

type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

const CategoryOther = "other"

var categories = []Category{
	{Key: "accommodation", Label: "Accommodation"},
	{Key: "transport", Label: "Transport"},
	{Key: "food", Label: "Food & Drinks"},
	{Key: "activities", Label: "Activities"},
	{Key: "shopping", Label: "Shopping"},
	{Key: CategoryOther, Label: "Other"},
}

// Categories lists the registered categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func LookupCategory(key string) (Category, bool) {
	for _, c := range categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}
