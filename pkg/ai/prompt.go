package ai

import (
	"encoding/json"
	"strings"
)

// PromptSource supplies the system prompt for recipe generation
type PromptSource interface {
	Prompt() string
}

// StaticPrompt is a fixed prompt
type StaticPrompt string

func (p StaticPrompt) Prompt() string { return string(p) }

// Cuisines the model may choose from
var Cuisines = []string{
	"Italian", "Chinese", "Indian", "Mexican", "Thai", "Japanese", "French",
	"Greek", "Spanish", "Lebanese", "Turkish", "Vietnamese", "Korean",
	"American", "Caribbean", "Brazilian", "Ethiopian", "Moroccan", "German", "British",
}

// Difficulties accepted for recipes
var Difficulties = []string{"Easy", "Medium", "Hard", "Michelin Star Chef"}

// DefaultPrompt describes the recipe JSON schema to the model
var DefaultPrompt = buildDefaultPrompt()

func buildDefaultPrompt() string {
	prompt := map[string]interface{}{
		"context": strings.Join([]string{
			"Create one recipe from the prompt, which may name a dish or list ingredients.",
			"Always answer in English.",
			"Answer with a single JSON object following the schema, without markdown code fences.",
		}, " "),
		"schema": map[string]string{
			"title":        "string",
			"description":  "string",
			"servings":     "string",
			"notes":        "string (optional)",
			"prepTime":     "number in minutes",
			"cookTime":     "number in minutes",
			"nutrients":    "object (optional) with float properties calories, carbohydrates, protein, fat",
			"cuisine":      "string, one of cuisineTypes",
			"language":     "string",
			"difficulty":   "string, one of " + strings.Join(Difficulties, ", "),
			"ingredients":  "array of objects with name: string, quantity: number, unit: string",
			"instructions": "array of strings, one per step",
		},
		"cuisineTypes": Cuisines,
		"example": map[string]interface{}{
			"title":       "Spaghetti Carbonara",
			"description": "A classic Italian pasta dish made with eggs, cheese, pancetta, and pepper.",
			"servings":    "4",
			"notes":       "Use freshly grated Parmesan for the best flavor.",
			"prepTime":    15,
			"cookTime":    20,
			"nutrients":   map[string]float64{"calories": 450, "protein": 20, "fat": 15, "carbohydrates": 60},
			"cuisine":     "Italian",
			"language":    "en",
			"difficulty":  "Medium",
			"ingredients": []map[string]interface{}{
				{"name": "Spaghetti", "quantity": 200, "unit": "g"},
				{"name": "Pancetta", "quantity": 100, "unit": "g"},
				{"name": "Eggs", "quantity": 2, "unit": "item"},
				{"name": "Parmesan cheese", "quantity": 50, "unit": "g"},
			},
			"instructions": []string{
				"Boil the spaghetti in salted water until al dente.",
				"Fry the pancetta until crispy.",
				"Beat the eggs in a bowl, then mix in the Parmesan cheese.",
				"Drain the pasta, toss with the pancetta off the heat, and stir in the egg mixture.",
			},
		},
	}
	b, err := json.Marshal(prompt)
	if err != nil {
		panic(err)
	}
	return string(b)
}
