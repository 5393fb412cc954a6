package taxonomy

import "github.com/TobiSchelling/reviewtrends/internal/database"

// seedTopics is the starting taxonomy every app begins with.
var seedTopics = []database.TopicDefinition{
	{
		TopicID:     "delivery_delay",
		TopicName:   "Delivery/Service Delay",
		Category:    database.CategoryIssue,
		Variations:  []string{"late delivery", "slow service", "took too long", "delayed", "waiting time", "takes forever"},
		Description: "Service or delivery slower than expected",
	},
	{
		TopicID:     "quality_issue",
		TopicName:   "Product/Service Quality Issue",
		Category:    database.CategoryIssue,
		Variations:  []string{"poor quality", "bad quality", "stale", "damaged", "not fresh", "low quality", "substandard"},
		Description: "Problems with quality of product/service",
	},
	{
		TopicID:     "staff_behavior",
		TopicName:   "Staff/Representative Behavior Issue",
		Category:    database.CategoryIssue,
		Variations:  []string{"rude staff", "unprofessional", "bad behavior", "misbehaved", "impolite", "disrespectful"},
		Description: "Negative interaction with staff/representatives",
	},
	{
		TopicID:     "order_accuracy",
		TopicName:   "Order/Request Incorrect",
		Category:    database.CategoryIssue,
		Variations:  []string{"wrong order", "missing items", "incorrect", "didn't receive", "wrong item", "incomplete order"},
		Description: "Received something different than requested",
	},
	{
		TopicID:     "payment_issue",
		TopicName:   "Payment/Refund Issue",
		Category:    database.CategoryIssue,
		Variations:  []string{"payment failed", "refund pending", "charged extra", "billing problem", "money deducted", "double charged"},
		Description: "Problems with payments or refunds",
	},
	{
		TopicID:     "app_technical",
		TopicName:   "App Technical Issue",
		Category:    database.CategoryIssue,
		Variations:  []string{"app crash", "not working", "login problem", "slow app", "freezing", "glitch", "bug", "error"},
		Description: "Technical problems with the application",
	},
	{
		TopicID:     "customer_support",
		TopicName:   "Customer Support Issue",
		Category:    database.CategoryIssue,
		Variations:  []string{"no response", "support unhelpful", "can't reach support", "poor customer service", "no help", "ignored"},
		Description: "Issues with customer service quality",
	},
	{
		TopicID:     "pricing",
		TopicName:   "Pricing/Charges Issue",
		Category:    database.CategoryIssue,
		Variations:  []string{"too expensive", "overpriced", "hidden charges", "high fees", "extra charges", "costly"},
		Description: "Complaints about pricing or fees",
	},
	{
		TopicID:     "packaging",
		TopicName:   "Packaging/Presentation Issue",
		Category:    database.CategoryIssue,
		Variations:  []string{"poor packaging", "leaked", "damaged package", "messy", "spilled", "broken seal"},
		Description: "Problems with packaging or presentation",
	},
	{
		TopicID:     "feature_request",
		TopicName:   "Feature Request/Suggestion",
		Category:    database.CategoryRequest,
		Variations:  []string{"add feature", "bring back", "need option", "suggestion", "would be great if", "please add"},
		Description: "User requests for features or improvements",
	},
}

// Seeds returns a fresh copy of the seed topics stamped with addedDate.
func Seeds(addedDate string) []database.TopicDefinition {
	out := make([]database.TopicDefinition, len(seedTopics))
	for i, t := range seedTopics {
		t.Variations = append([]string(nil), t.Variations...)
		t.AddedDate = addedDate
		t.IsSeed = true
		out[i] = t
	}
	return out
}
