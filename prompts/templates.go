package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/athapong/context-graph-explorer/pkg/graph"
)

// SystemPrompt is sent as the system message of every extraction call
const SystemPrompt = "You are an expert document analyzer specializing in concept extraction and relationship mapping."

var extractionTemplate = template.Must(template.New("extraction").Parse(`You analyze documents and pull out their key concepts, how those concepts relate, and how they nest into a hierarchy.

For the document below:

1. Identify the main concepts, entities, ideas and important terms.
2. Describe how the concepts relate to each other (dependencies, hierarchy, associations).
3. Organize the concepts into parent/child levels where that makes sense.

Document text:
` + "```" + `
{{.Text}}
` + "```" + `

Answer with a single JSON object in exactly this shape:

{
  "concepts": [
    {
      "id": "unique_concept_id",
      "name": "Concept Name",
      "description": "Short description of the concept",
      "type": "category|entity|process|definition|other",
      "importance": 1-10,
      "keywords": ["keyword1", "keyword2"]
    }
  ],
  "relationships": [
    {
      "source": "concept_id_1",
      "target": "concept_id_2",
      "relationship_type": "depends_on|part_of|related_to|defines|includes|causes|enables",
      "strength": 1-10,
      "description": "Short description of the relationship"
    }
  ],
  "hierarchy": [
    {
      "parent": "parent_concept_id",
      "children": ["child_concept_id_1", "child_concept_id_2"],
      "level": 1
    }
  ],
  "summary": "Short summary of the document's main themes and structure"
}

Guidelines:
- Concept IDs are lowercase words joined with underscores and stay consistent across the answer.
- Keep to the most important concepts (10 to 30 depending on document length).
- Use meaningful, consistent relationship types.
- Importance and strength reflect real significance in the text.
- Include explicit and implicit relationships, including temporal, causal and hierarchical ones.
{{- if .Part}}

This text is part {{.Part}} of {{.Parts}} of a longer document. Extract what this part contains.
{{- end}}
{{- if .FocusNote}}

Note: Focus on the top {{.MaxConcepts}} most important concepts.
{{- end}}
`))

var refinementTemplate = template.Must(template.New("refinement").Parse(`Below are concepts extracted from a document and their first-pass relationships. Improve the relationship network:

1. Add meaningful relationships that are implied but missing.
2. Make relationship types accurate and specific.
3. Adjust strength scores to the context.
4. Remove weak or irrelevant connections.

Current concepts and relationships:
` + "```json" + `
{{.Data}}
` + "```" + `

Answer with a JSON object holding only the refined list:

{"relationships": [{"source": "...", "target": "...", "relationship_type": "...", "strength": 1-10, "description": "..."}]}
`))

var groupingTemplate = template.Must(template.New("grouping").Parse(`Organize the following concepts from a document into groups that represent distinct themes, topics or functional areas.

Concepts:
` + "```json" + `
{{.Data}}
` + "```" + `

Answer with a JSON object in this shape:

{
  "groups": [
    {
      "group_id": "unique_group_id",
      "group_name": "Descriptive Group Name",
      "description": "What this group represents",
      "concepts": ["concept_id_1", "concept_id_2"],
      "color": "#hex_color_code",
      "priority": 1-5
    }
  ]
}

Guidelines:
- Create between 3 and 8 groups.
- Every concept belongs to exactly one group.
- Group names are short and descriptive.
- Use clearly distinct colors.
- Priority 1 is the most important, 5 the least.
`))

// ExtractionPrompt builds the concept extraction prompt. part and parts are
// 1-based chunk positions; pass 0 for an undivided document.
func ExtractionPrompt(text string, maxConcepts, part, parts int) (string, error) {
	data := struct {
		Text        string
		MaxConcepts int
		FocusNote   bool
		Part        int
		Parts       int
	}{
		Text:        text,
		MaxConcepts: maxConcepts,
		FocusNote:   maxConcepts != graph.DefaultConcepts,
		Part:        part,
		Parts:       parts,
	}
	if parts <= 1 {
		data.Part = 0
	}
	return execute(extractionTemplate, data)
}

// RefinementPrompt builds the relationship refinement prompt
func RefinementPrompt(concepts []graph.Concept, relationships []graph.Relationship) (string, error) {
	payload := map[string]interface{}{
		"concepts":      concepts,
		"relationships": relationships,
	}
	return executeJSON(refinementTemplate, payload)
}

// GroupingPrompt builds the concept grouping prompt
func GroupingPrompt(concepts []graph.Concept) (string, error) {
	return executeJSON(groupingTemplate, concepts)
}

func executeJSON(tmpl *template.Template, payload interface{}) (string, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt data: %w", err)
	}
	return execute(tmpl, struct{ Data string }{Data: string(raw)})
}

func execute(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
