package services

import (
	"testing"
	"time"

	"civicbounty-be/models"

	"github.com/stretchr/testify/assert"
)

func TestRules_Classify(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		description string
		want        string
	}{
		{"gutter overflow near water main", "Gutter"},
		{"Storm DRAIN is blocked", "Gutter"},
		{"garbage piling up by the school", "Garbage"},
		{"Industrial waste dumped", "Garbage"},
		{"Streetlight flickering all night", "Streetlight"},
		{"traffic light broken", "Streetlight"},
		{"Water leaking from a pipe", "Water"},
		{"pothole on the main road", "Other"},
		{"", "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.Classify(tt.description))
		})
	}
}

func TestRules_PredictResolution(t *testing.T) {
	rules := DefaultRules()
	created := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		priority models.Priority
		days     int
	}{
		{models.PriorityLow, 14},
		{models.PriorityMedium, 7},
		{models.PriorityHigh, 3},
		{models.PriorityCritical, 1},
		{models.Priority("Unknown"), 7},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			got := rules.PredictResolution(created, tt.priority)
			assert.Equal(t, created.Add(time.Duration(tt.days)*24*time.Hour), got)
		})
	}
}

func TestRules_BadgesFor(t *testing.T) {
	rules := DefaultRules()
	assert.Empty(t, rules.BadgesFor(0))
	assert.Equal(t, []string{"First Fix"}, rules.BadgesFor(10))
	assert.Equal(t, []string{"First Fix", "Neighbourhood Hero"}, rules.BadgesFor(60))
	assert.Equal(t, []string{"First Fix", "Neighbourhood Hero", "Civic Champion"}, rules.BadgesFor(100))
}
