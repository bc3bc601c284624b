package resolver

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Synonyms maps a spoken keyword to inventory name fragments, e.g.
// "milk" → ["milk", "taaza", "amul"]. Entries keep their file order.
type Synonyms struct {
	entries []synonymEntry
}

type synonymEntry struct {
	keyword string
	terms   []string
}

// DefaultSynonyms is the built-in table used when no file is configured.
func DefaultSynonyms() *Synonyms {
	s := &Synonyms{}
	s.Add("milk", "milk", "taaza", "amul")
	s.Add("curd", "curd", "dahi")
	s.Add("flour", "atta", "flour")
	s.Add("atta", "atta", "flour")
	s.Add("oil", "oil", "fortune", "saffola")
	s.Add("rice", "rice", "basmati")
	s.Add("lentils", "dal", "lentil")
	s.Add("dal", "dal", "lentil")
	s.Add("sugar", "sugar", "shakkar")
	s.Add("salt", "salt", "namak")
	s.Add("bread", "bread", "pav")
	return s
}

// Add appends a keyword with its name fragments. Keywords and terms are
// stored lower-cased.
func (s *Synonyms) Add(keyword string, terms ...string) {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	s.entries = append(s.entries, synonymEntry{
		keyword: strings.ToLower(strings.TrimSpace(keyword)),
		terms:   lowered,
	})
}

// Len returns the number of keywords.
func (s *Synonyms) Len() int {
	return len(s.entries)
}

// termsFor returns the fragments of the first keyword mentioned by the query,
// either as a token or as the whole query.
func (s *Synonyms) termsFor(tokens []string, query string) []string {
	for _, e := range s.entries {
		if e.keyword == query {
			return e.terms
		}
		for _, t := range tokens {
			if t == e.keyword {
				return e.terms
			}
		}
	}
	return nil
}

// UnmarshalYAML decodes an ordered mapping of keyword → list of fragments.
func (s *Synonyms) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("synonyms: expected mapping, got %v", node.Tag)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var keyword string
		if err := node.Content[i].Decode(&keyword); err != nil {
			return fmt.Errorf("synonyms: key: %w", err)
		}
		var terms []string
		if err := node.Content[i+1].Decode(&terms); err != nil {
			return fmt.Errorf("synonyms: %s: %w", keyword, err)
		}
		s.Add(keyword, terms...)
	}
	return nil
}

// ParseSynonyms decodes a YAML synonym table.
func ParseSynonyms(data []byte) (*Synonyms, error) {
	s := &Synonyms{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSynonyms reads a YAML synonym table from path.
func LoadSynonyms(path string) (*Synonyms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file: %w", err)
	}
	return ParseSynonyms(data)
}
