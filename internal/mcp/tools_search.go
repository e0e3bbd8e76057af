package mcp

import (
	"context"
)

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"Regex pattern or text matched against tool names, descriptions and keywords"`
	Category string `json:"category,omitempty" jsonschema:"Filter to one category: session, clarification, artifact, knowledge or search"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 5)"`
}

type toolHit struct {
	Name        string   `json:"name" jsonschema:"Tool name"`
	Description string   `json:"description" jsonschema:"Tool description"`
	Category    string   `json:"category" jsonschema:"Tool category"`
	Keywords    []string `json:"keywords,omitempty" jsonschema:"Search keywords"`
	Score       int      `json:"score,omitempty" jsonschema:"Match score, higher is better"`
	MatchReason string   `json:"match_reason,omitempty" jsonschema:"Why the tool matched"`
}

type toolSearchOutput struct {
	Query      string    `json:"query" jsonschema:"Search query used"`
	Results    []toolHit `json:"results" jsonschema:"Matching tools"`
	Count      int       `json:"count" jsonschema:"Number of tools found"`
	TotalTools int       `json:"total_tools" jsonschema:"Total number of tools in registry"`
}

type toolListInput struct {
	Category string `json:"category,omitempty" jsonschema:"Filter to a specific category"`
}

type toolListOutput struct {
	Tools []toolHit `json:"tools" jsonschema:"Registered tools"`
	Count int       `json:"count" jsonschema:"Number of tools returned"`
}

func toToolHit(t *ToolMetadata) toolHit {
	return toolHit{
		Name:        t.Name,
		Description: t.Description,
		Category:    string(t.Category),
		Keywords:    t.Keywords,
	}
}

func (s *Server) registerSearchTools() error {
	if err := addTool(s, &ToolMetadata{
		Name:        "tool_search",
		Description: "Search the available tools by name, description or keyword",
		Category:    CategorySearch,
		Keywords:    []string{"discover", "help"},
	}, func(_ context.Context, in toolSearchInput) (toolSearchOutput, error) {
		if err := required("query", in.Query); err != nil {
			return toolSearchOutput{}, err
		}
		limit := in.Limit
		if limit <= 0 {
			limit = 5
		}
		found := s.toolRegistry.Search(in.Query, ToolCategory(in.Category))
		if len(found) > limit {
			found = found[:limit]
		}
		out := toolSearchOutput{
			Query:      in.Query,
			Results:    make([]toolHit, 0, len(found)),
			TotalTools: s.toolRegistry.Count(),
		}
		for _, r := range found {
			hit := toToolHit(r.Tool)
			hit.Score = r.Score
			hit.MatchReason = r.MatchReason
			out.Results = append(out.Results, hit)
		}
		out.Count = len(out.Results)
		return out, nil
	}); err != nil {
		return err
	}

	return addTool(s, &ToolMetadata{
		Name:        "tool_list",
		Description: "List every available tool with its category",
		Category:    CategorySearch,
	}, func(_ context.Context, in toolListInput) (toolListOutput, error) {
		tools := s.toolRegistry.List(ToolCategory(in.Category))
		out := toolListOutput{Tools: make([]toolHit, 0, len(tools))}
		for _, t := range tools {
			out.Tools = append(out.Tools, toToolHit(t))
		}
		out.Count = len(out.Tools)
		return out, nil
	})
}
