package services

import (
	"strings"
	"time"

	"civicbounty-be/models"
)

type KeywordRule struct {
	Keywords []string
	Category string
}

type BadgeRule struct {
	Name      string
	MinPoints int
}

// Rules is the tunable configuration of the issue workflow and ledger.
// It is built once and passed in; services never mutate it.
type Rules struct {
	PriorityDays     map[models.Priority]int
	DefaultDays      int
	CategoryRules    []KeywordRule
	FallbackCategory string
	ResolvePoints    int
	Badges           []BadgeRule
	LeaderboardSize  int
}

func DefaultRules() Rules {
	return Rules{
		PriorityDays: map[models.Priority]int{
			models.PriorityLow:      14,
			models.PriorityMedium:   7,
			models.PriorityHigh:     3,
			models.PriorityCritical: 1,
		},
		DefaultDays: 7,
		CategoryRules: []KeywordRule{
			{Keywords: []string{"gutter", "drain"}, Category: "Gutter"},
			{Keywords: []string{"garbage", "waste"}, Category: "Garbage"},
			{Keywords: []string{"streetlight", "light"}, Category: "Streetlight"},
			{Keywords: []string{"water"}, Category: "Water"},
		},
		FallbackCategory: "Other",
		ResolvePoints:    10,
		Badges: []BadgeRule{
			{Name: "First Fix", MinPoints: 10},
			{Name: "Neighbourhood Hero", MinPoints: 50},
			{Name: "Civic Champion", MinPoints: 100},
		},
		LeaderboardSize: 10,
	}
}

// Classify returns the category of the first rule with a keyword contained
// in the lower-cased description.
func (r Rules) Classify(description string) string {
	text := strings.ToLower(description)
	for _, rule := range r.CategoryRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Category
			}
		}
	}
	return r.FallbackCategory
}

func (r Rules) PredictResolution(createdAt time.Time, p models.Priority) time.Time {
	days, ok := r.PriorityDays[p]
	if !ok {
		days = r.DefaultDays
	}
	return createdAt.Add(time.Duration(days) * 24 * time.Hour)
}

// BadgesFor lists the badges whose threshold points reaches.
func (r Rules) BadgesFor(points int) []string {
	var earned []string
	for _, b := range r.Badges {
		if points >= b.MinPoints {
			earned = append(earned, b.Name)
		}
	}
	return earned
}
