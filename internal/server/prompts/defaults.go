package prompts

// defaultSpecs returns the built-in profiles used when no profile file is
// configured or a category is missing from it. Keys are normalized.
func defaultSpecs() map[string]profileSpec {
	noteSchema := map[string]any{
		"type":     "object",
		"required": []any{"title", "summary"},
		"properties": map[string]any{
			"title":   map[string]any{"type": "string"},
			"summary": map[string]any{"type": "string"},
			"sections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"heading", "content"},
					"properties": map[string]any{
						"heading": map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
				},
			},
			"key_points": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"advice": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"meta": map[string]any{"type": "object"},
		},
	}

	system := "You are a note-taking assistant. You read photos of handwritten or " +
		"printed material and produce one structured note as a single JSON object. " +
		"Reply with JSON only, no prose around it."

	user := "Extract a structured note from the attached images.\n" +
		"Category: {category}\nTags: {tags}\n" +
		"Return a JSON object with title, summary, sections (heading/content), " +
		"key_points, advice and meta fields. Keep the original language of the source."

	return map[string]profileSpec{
		normalize(defaultKey): {
			DisplayName:  "study notes",
			SystemPrompt: system,
			UserPrompt:   user,
			Schema:       noteSchema,
		},
		normalize("meeting"): {
			DisplayName:  "meeting minutes",
			SystemPrompt: system,
			UserPrompt: "Extract meeting minutes from the attached images.\n" +
				"Category: {category}\nTags: {tags}\n" +
				"Return a JSON object with title, summary, sections for decisions and " +
				"action items, key_points, advice and meta fields.",
			Schema: noteSchema,
		},
		normalize("recipe"): {
			DisplayName:  "recipe",
			SystemPrompt: system,
			UserPrompt: "Extract a recipe from the attached images.\n" +
				"Category: {category}\nTags: {tags}\n" +
				"Return a JSON object with title, summary, sections for ingredients " +
				"and steps, key_points, advice and meta fields.",
			Schema: noteSchema,
		},
	}
}
