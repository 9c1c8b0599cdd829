package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Category is reference data used to classify issues.
type Category struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name string             `bson:"name" json:"name"`
	Icon string             `bson:"icon" json:"icon"`
}

// DefaultCategories is the registry seeded on a fresh install.
var DefaultCategories = []Category{
	{Name: "Road", Icon: "road"},
	{Name: "Water", Icon: "droplet"},
	{Name: "Sanitation", Icon: "trash"},
	{Name: "Electricity", Icon: "bolt"},
	{Name: "Other", Icon: "circle"},
}
