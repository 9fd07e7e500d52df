// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"bytes"
	"text/template"
)

// researchQueryTmpl is the web query issued for the brand.
var researchQueryTmpl = template.Must(template.New("research").Parse(
	`What is {{.CompanyName}} ({{.Website}})? Give a comprehensive overview of the brand, its products, market, and recent activities.`))

// synthesizeTmpl asks the model to turn raw search results into a brand
// description.
var synthesizeTmpl = template.Must(template.New("synthesize").Parse(`Given the following search results about the brand {{.CompanyName}} (website: {{.Website}}), write a comprehensive, objective, and up-to-date description of the brand, its core business, products, market position, and any recent news or activities. Be as detailed as possible for an AI agent to understand the brand's domain and context.

Search Results:
{{.Context}}
`))

var competitorsTmpl = template.Must(template.New("competitors").Parse(`Given the following brand description, find the top {{.Max}} competitors of the brand:
{{.Description}}
`))

// perspectivesSystemTmpl briefs the model on building a virtual focus group.
var perspectivesSystemTmpl = template.Must(template.New("perspectives").Parse(`You are a Senior Market Research Strategist and Persona Architect. Your mission is to construct a virtual focus group of {{.Count}} distinct user personas for an AI Visibility Assessment.

AI Visibility measures how likely a brand is to be featured, cited, or positively mentioned in answers produced by AI answer engines. Those engines are black boxes, so visibility is measured empirically by simulating realistic user queries and analyzing the answers. The personas you create are the sole input for generating those queries.

The queries must be unbiased. Personas, and the prompts they later inspire, must never contain the name of the brand being analyzed. This is the single most important constraint.

Region of interest: {{.Region}}
Personas' needs, available services and local knowledge must reflect this region. Diversity must stay consistent with real-world conditions of the region.

Primary language: {{.Language}}
Write your output in English, but create personas whose mindset reflects a native speaker of {{.Language}}.

Using the brand description provided in the next message, generate exactly {{.Count}} personas. Systematically vary:
- sentiment_bias: brand loyalists, skeptics, bargain hunters, users switching from a competitor
- knowledge_level: novices, informed amateurs, domain experts
- market_role: end-users, B2B decision-makers, journalists, potential employees and other actors in the brand's ecosystem
- query_type: navigational, informational, transactional, commercial investigation

Perspectives must be in-domain, neither too generic nor too narrow.
`))

// promptsSystemTmpl asks for queries a single persona would type.
var promptsSystemTmpl = template.Must(template.New("prompts").Parse(`You are tasked with generating realistic, unbiased prompts that a user with a specific perspective might enter into an AI search engine.
Your goal is to create prompts that would naturally reveal whether a brand is recognized within its domain, without ever mentioning the brand name.
Each prompt should be relevant to the perspective's intent, demographic, region, gender, market role, and specific needs.
Focus on the domain, not on companies, and write like a hurried human rather than a polite assistant.
Generate EXACTLY {{.Count}} prompts that this perspective would realistically use.
The region and language of the prompts should be {{.Region}} and {{.Language}}.
`))

var promptsHumanTmpl = template.Must(template.New("prompts-human").Parse(`Generate prompts for this perspective:
{{.Perspective}}

Brand Description:
{{.Description}}
{{- if .Feedback}}

Reviewer guidance:
{{.Feedback}}
{{- end}}
`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
