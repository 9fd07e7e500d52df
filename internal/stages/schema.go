package stages

import (
	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// CompetitorList is the structured output of competitor discovery.
type CompetitorList struct {
	Competitors []types.Competitor `json:"competitors"`
}

// PerspectiveList is the structured output of perspective generation.
type PerspectiveList struct {
	Perspectives []types.Perspective `json:"perspectives"`
}

// PromptList is the structured output of prompt generation for one
// perspective. The perspective on each item is replaced by the payload's.
type PromptList struct {
	Prompts []types.Prompt `json:"prompts"`
}

var competitorsSchema = ports.Schema{
	Name:        "Competitors",
	Description: "List of competitors of the brand. Each competitor has name, description, website, logo, industry and location.",
	Example:     `{"competitors": [{"name": "Globex", "description": "Industrial anvils and rockets", "website": "globex.com", "logo": "https://globex.com/logo.png", "industry": "Manufacturing", "location": "Springfield, USA"}]}`,
}

var perspectivesSchema = ports.Schema{
	Name: "Perspectives",
	Description: "List of diverse perspectives for assessing brand visibility. Each perspective has intent (required), " +
		"demographic, region, gender, market_role, specific_need, knowledge_level, language, sentiment_bias and query_type.",
	Example: `{"perspectives": [{"intent": "Make a purchase decision", "demographic": "University Student", "region": "Atlanta, GA, USA", ` +
		`"gender": "", "market_role": "End-User/Consumer", "specific_need": "Needs a laptop with >16 hours of battery life", ` +
		`"knowledge_level": "Novice/Beginner", "language": "English", "sentiment_bias": "Price-Conscious Shopper", "query_type": "Commercial Investigation"}]}`,
}

var promptsSchema = ports.Schema{
	Name:        "Prompts",
	Description: "List of prompts generated for a given perspective. Each prompt has the text that would be typed into an AI search engine.",
	Example:     `{"prompts": [{"text": "best laptop battery life under 800"}]}`,
}
