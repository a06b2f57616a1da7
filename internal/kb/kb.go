// ABOUTME: Knowledge base articles loaded from a TOML file
// ABOUTME: Backs the search_knowledge_base tool with case-insensitive search

package kb

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
)

// Article is a single knowledge base document.
type Article struct {
	Title   string   `toml:"title" json:"title"`
	Content string   `toml:"content" json:"content"`
	Tags    []string `toml:"tags" json:"tags,omitempty"`
}

// Library holds the loaded article set. It is read-only after Load,
// so Search is safe for concurrent use.
type Library struct {
	articles []Article
}

type articleFile struct {
	Articles []Article `toml:"article"`
}

// Load reads articles from a TOML file of [[article]] blocks.
// An empty path returns the embedded default set.
func Load(path string) (*Library, error) {
	if path == "" {
		return Default(), nil
	}

	var f articleFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	slog.Default().Info("knowledge base loaded", "component", "kb", "path", path, "articles", len(f.Articles))
	return &Library{articles: f.Articles}, nil
}

// Default returns a small built-in article set so the search tool works
// without any configuration.
func Default() *Library {
	return &Library{articles: []Article{
		{
			Title:   "Getting started",
			Content: "Create a user, start a conversation, and append messages through the conversation tools.",
			Tags:    []string{"onboarding"},
		},
		{
			Title:   "Tool failures",
			Content: "Every tool call returns JSON. A failed call returns an error field instead of crashing the agent.",
			Tags:    []string{"tools", "errors"},
		},
		{
			Title:   "Calculations",
			Content: "The calculate tool accepts arithmetic expressions like 2+2 or (1+2)*3. It does not execute code.",
			Tags:    []string{"tools", "calculate"},
		},
	}}
}

// Search returns articles whose title, content, or tags contain the query,
// case-insensitively. An empty query matches nothing.
func (l *Library) Search(query string) []Article {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []Article{}
	}

	results := []Article{}
	for _, a := range l.articles {
		if strings.Contains(strings.ToLower(a.Title), query) ||
			strings.Contains(strings.ToLower(a.Content), query) {
			results = append(results, a)
			continue
		}
		for _, tag := range a.Tags {
			if strings.Contains(strings.ToLower(tag), query) {
				results = append(results, a)
				break
			}
		}
	}
	return results
}

// Len reports how many articles are loaded.
func (l *Library) Len() int { return len(l.articles) }
