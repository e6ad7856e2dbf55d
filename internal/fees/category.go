package fees

import (
	"strings"

	"github.com/pkg/errors"
)

const CategoryOther = "other"

// Rule maps any of its keywords, matched as a case-insensitive substring of a
// component name, to a category.
type Rule struct {
	Category string
	Keywords []string
}

var DefaultRules = []Rule{
	{Category: "hostel", Keywords: []string{"hostel", "mess", "room", "accommodation"}},
	{Category: "transport", Keywords: []string{"bus", "transport"}},
	{Category: "examination", Keywords: []string{"exam"}},
	{Category: "library", Keywords: []string{"library"}},
	{Category: "tuition", Keywords: []string{"tuition", "course", "semester", "admission", "lab"}},
	{Category: "activities", Keywords: []string{"sport", "event", "activity", "club"}},
}

// Classifier infers a category from a component name. The first matching
// rule wins.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules []Rule) *Classifier {
	normalized := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		r := Rule{Category: normalizeCategory(rule.Category)}
		for _, kw := range rule.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				r.Keywords = append(r.Keywords, kw)
			}
		}
		if r.Category != "" && len(r.Keywords) > 0 {
			normalized = append(normalized, r)
		}
	}
	return &Classifier{rules: normalized}
}

func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultRules)
}

// Infer returns CategoryOther when no rule matches.
func (c *Classifier) Infer(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Category
			}
		}
	}
	return CategoryOther
}

// ParseRules reads "category=kw1,kw2;category=kw3". Parsed rules are placed
// ahead of DefaultRules so they take precedence.
func ParseRules(value string) ([]Rule, error) {
	var rules []Rule
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		category, keywords, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(category) == "" || strings.TrimSpace(keywords) == "" {
			return nil, errors.Errorf("invalid fee category rule %q", part)
		}
		rules = append(rules, Rule{
			Category: strings.TrimSpace(category),
			Keywords: strings.Split(keywords, ","),
		})
	}
	return append(rules, DefaultRules...), nil
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
