// Package ai generates recipes with a hosted language model.
//
// GeminiClient talks to the generateContent REST API. RecipeGenerator wraps
// any TextGenerator, applies the system prompt and checks that the reply is
// a recipe object with a title. The prompt can be served from a file with
// PromptWatcher, which reloads it when the file changes.
package ai
