package extractor

import (
	"regexp"
	"strings"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	separators = regexp.MustCompile(`[-\s]+`)
	hexColor   = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}){1,2}$`)
)

var conceptTypes = map[string]bool{
	graph.ConceptTypeCategory:   true,
	graph.ConceptTypeEntity:     true,
	graph.ConceptTypeProcess:    true,
	graph.ConceptTypeDefinition: true,
	graph.ConceptTypeOther:      true,
}

// CleanID normalizes a concept ID: lowercase, punctuation removed, spaces
// and dashes collapsed to underscores.
func CleanID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = nonWord.ReplaceAllString(id, "")
	id = separators.ReplaceAllString(id, "_")
	return strings.Trim(id, "_")
}

// extractJSON returns the outermost JSON object or array of a model answer
func extractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	open, closing := "{", "}"
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "[") {
		open, closing = "[", "]"
	}

	start := strings.Index(content, open)
	end := strings.LastIndex(content, closing)
	if start == -1 || end == -1 || end < start {
		return "", errors.Wrap(graph.ErrMalformedResponse, "no JSON object in response")
	}

	raw := content[start : end+1]
	if !gjson.Valid(raw) {
		return "", errors.Wrap(graph.ErrMalformedResponse, "response is not valid JSON")
	}
	return raw, nil
}

// ParseExtraction converts a model answer into an Extraction. Concepts
// without an id or name are skipped; relationship endpoints may be given by
// ID or by concept name.
func ParseExtraction(content string) (*graph.Extraction, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	root := gjson.Parse(raw)
	if !root.IsObject() || !root.Get("concepts").Exists() {
		return nil, errors.Wrap(graph.ErrMalformedResponse, "response has no concepts")
	}
	if !root.Get("concepts").IsArray() {
		return nil, errors.Wrap(graph.ErrMalformedResponse, "concepts is not a list")
	}

	ext := &graph.Extraction{
		Concepts:      parseConcepts(root.Get("concepts")),
		Relationships: []graph.Relationship{},
		Hierarchy:     []graph.Hierarchy{},
		Summary:       strings.TrimSpace(root.Get("summary").String()),
	}

	resolve := newResolver(ext.Concepts)
	ext.Relationships = parseRelationships(root.Get("relationships"), resolve)

	root.Get("hierarchy").ForEach(func(_, h gjson.Result) bool {
		parent := resolve(h.Get("parent").String())
		if parent == "" {
			return true
		}
		item := graph.Hierarchy{
			Parent: parent,
			Level:  int(intField(h.Get("level"), 1, 1, 100)),
		}
		h.Get("children").ForEach(func(_, c gjson.Result) bool {
			if child := resolve(c.String()); child != "" {
				item.Children = append(item.Children, child)
			}
			return true
		})
		ext.Hierarchy = append(ext.Hierarchy, item)
		return true
	})

	return ext, nil
}

// ParseRelationships reads a refinement answer: either {"relationships": [...]} or a bare list
func ParseRelationships(content string, concepts []graph.Concept) ([]graph.Relationship, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	root := gjson.Parse(raw)
	list := root
	if root.IsObject() {
		list = root.Get("relationships")
	}
	if !list.IsArray() {
		return nil, errors.Wrap(graph.ErrMalformedResponse, "response has no relationships")
	}
	return parseRelationships(list, newResolver(concepts)), nil
}

// ParseGroups reads a grouping answer
func ParseGroups(content string, concepts []graph.Concept) ([]graph.ConceptGroup, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	list := gjson.Get(raw, "groups")
	if !list.IsArray() {
		return nil, errors.Wrap(graph.ErrMalformedResponse, "response has no groups")
	}

	resolve := newResolver(concepts)
	groups := make([]graph.ConceptGroup, 0)
	list.ForEach(func(_, g gjson.Result) bool {
		id := CleanID(firstString(g, "group_id", "id"))
		name := strings.TrimSpace(firstString(g, "group_name", "name"))
		if id == "" {
			id = CleanID(name)
		}
		if id == "" {
			return true
		}
		if name == "" {
			name = id
		}

		group := graph.ConceptGroup{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(g.Get("description").String()),
			Priority:    int(intField(g.Get("priority"), 3, 1, 5)),
		}
		if color := strings.TrimSpace(g.Get("color").String()); hexColor.MatchString(color) {
			group.Color = color
		}
		g.Get("concepts").ForEach(func(_, c gjson.Result) bool {
			if cid := resolve(c.String()); cid != "" {
				group.Concepts = append(group.Concepts, cid)
			}
			return true
		})
		groups = append(groups, group)
		return true
	})
	return groups, nil
}

func parseConcepts(list gjson.Result) []graph.Concept {
	concepts := make([]graph.Concept, 0)
	list.ForEach(func(_, c gjson.Result) bool {
		id := CleanID(c.Get("id").String())
		name := strings.TrimSpace(c.Get("name").String())
		if id == "" || name == "" {
			return true
		}

		conceptType := strings.ToLower(strings.TrimSpace(c.Get("type").String()))
		if !conceptTypes[conceptType] {
			conceptType = graph.ConceptTypeOther
		}

		concepts = append(concepts, graph.Concept{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(c.Get("description").String()),
			Type:        conceptType,
			Importance:  int(intField(c.Get("importance"), graph.DefaultImportance, 1, 10)),
			Keywords:    stringList(c.Get("keywords")),
		})
		return true
	})
	return concepts
}

func parseRelationships(list gjson.Result, resolve func(string) string) []graph.Relationship {
	relationships := make([]graph.Relationship, 0)
	list.ForEach(func(_, r gjson.Result) bool {
		source := resolve(r.Get("source").String())
		target := resolve(r.Get("target").String())
		if source == "" || target == "" {
			return true
		}

		relType := CleanID(firstString(r, "relationship_type", "type"))
		if relType == "" {
			relType = graph.DefaultRelationshipType
		}

		relationships = append(relationships, graph.Relationship{
			Source:      source,
			Target:      target,
			Type:        relType,
			Strength:    int(intField(r.Get("strength"), graph.DefaultStrength, 1, 10)),
			Description: strings.TrimSpace(r.Get("description").String()),
		})
		return true
	})
	return relationships
}

// newResolver maps a reference to a concept ID. Known IDs win, then
// concept names; unknown references keep their cleaned form so the graph
// builder can report them.
func newResolver(concepts []graph.Concept) func(string) string {
	ids := make(map[string]bool, len(concepts))
	byName := make(map[string]string, len(concepts))
	for _, c := range concepts {
		ids[c.ID] = true
		if _, ok := byName[CleanID(c.Name)]; !ok {
			byName[CleanID(c.Name)] = c.ID
		}
	}

	return func(ref string) string {
		cleaned := CleanID(ref)
		if ids[cleaned] {
			return cleaned
		}
		if id, ok := byName[cleaned]; ok {
			return id
		}
		return cleaned
	}
}

// intField reads a number or numeric string, clamped to [lo, hi]
func intField(v gjson.Result, def, lo, hi int64) int64 {
	var n int64
	switch v.Type {
	case gjson.Number:
		n = int64(v.Float() + 0.5)
	case gjson.String:
		if !gjson.Valid(strings.TrimSpace(v.Str)) {
			return def
		}
		n = int64(gjson.Parse(strings.TrimSpace(v.Str)).Float() + 0.5)
	default:
		return def
	}
	if n == 0 {
		return def
	}
	return max(lo, min(hi, n))
}

func stringList(v gjson.Result) []string {
	out := make([]string, 0)
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
			return true
		})
	case v.Type == gjson.String:
		for _, s := range strings.Split(v.Str, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func firstString(v gjson.Result, keys ...string) string {
	for _, key := range keys {
		if s := v.Get(key).String(); s != "" {
			return s
		}
	}
	return ""
}
