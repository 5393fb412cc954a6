package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TobiSchelling/reviewtrends/internal/database"
)

const extractionSystem = `You analyse app store reviews and extract the concrete issues, complaints and feature requests they raise.

Rules:
- Extract only actionable problems or requests, each as a short phrase of 3 to 7 words.
- Ignore generic praise or sentiment ("great app", "love it", "worst ever").
- A review may raise several topics, or none. Use an empty array when it raises none.
- Return every review id you were given, exactly once.

Respond with a JSON array only, no prose:
[{"reviewId": "<id>", "extractedTopics": ["<phrase>", ...]}]`

const mappingSystem = `You map phrases extracted from app reviews onto an existing topic taxonomy. Be strict.

Confidence scale:
- 0.90-1.00: the phrase is clearly the same issue as the topic
- 0.70-0.89: the phrase is very likely the topic
- below 0.70: uncertain or a different issue

If no topic fits with confidence of at least 0.70, set mapped_topic_id to null.
Never invent topic ids; only use ids from the taxonomy.

Respond with a JSON array only, one entry per phrase:
[{"extracted_topic": "<phrase>", "mapped_topic_id": "<topic_id or null>", "confidence": 0.0, "reasoning": "<short>"}]`

const validationSystem = `You decide whether a recurring phrase from app reviews should become a new topic in a taxonomy.

A valid topic is a specific, actionable issue or request that is not already covered by an existing topic.
Invalid: generic sentiment, vague statements, or duplicates of an existing topic.

Respond with a JSON object only:
{"topic": "<phrase>", "is_valid": true, "suggested_topic_id": "<snake_case_id>", "suggested_topic_name": "<Display Name>", "suggested_category": "issue" or "request", "reasoning": "<short>"}`

const maxVariationsShown = 3

type reviewInput struct {
	ReviewID string `json:"reviewId"`
	Rating   int    `json:"rating"`
	Text     string `json:"text"`
}

func extractionPrompt(reviews []database.Review) string {
	in := make([]reviewInput, len(reviews))
	for i, r := range reviews {
		in[i] = reviewInput{ReviewID: r.ID, Rating: r.Rating, Text: r.Content}
	}
	data, _ := json.MarshalIndent(in, "", "  ")
	return fmt.Sprintf("Extract topics from these %d reviews:\n\n%s", len(reviews), data)
}

func mappingPrompt(phrases []string, tax *database.Taxonomy) string {
	var b strings.Builder
	b.WriteString("Taxonomy:\n")
	for _, t := range tax.Topics {
		vars := t.Variations
		if len(vars) > maxVariationsShown {
			vars = vars[:maxVariationsShown]
		}
		fmt.Fprintf(&b, "- %s: %s (%s)", t.TopicID, t.TopicName, t.Category)
		if len(vars) > 0 {
			fmt.Fprintf(&b, " e.g. %s", strings.Join(vars, ", "))
		}
		if t.Description != "" {
			fmt.Fprintf(&b, ". %s", t.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPhrases to map:\n")
	for _, p := range phrases {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return b.String()
}

func validationPrompt(phrase string, existing []string, limit int) string {
	if len(existing) > limit {
		existing = existing[:limit]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Candidate phrase: %q\n\nExisting topics:\n", phrase)
	for _, name := range existing {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}
