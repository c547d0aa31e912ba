package domain

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// KeywordGroup is one named list of keywords (a tech category, a severity
// tier or a whitelist category).
type KeywordGroup struct {
	Name     string
	Keywords []string
}

// KeywordGroups keeps the order in which groups were configured. Decoding a
// YAML mapping into KeywordGroups preserves document order, which the tech
// filter (last group wins) and the whitelist (first entry wins) depend on.
type KeywordGroups []KeywordGroup

// Get returns the keywords of the named group.
func (g KeywordGroups) Get(name string) []string {
	for _, group := range g {
		if group.Name == name {
			return group.Keywords
		}
	}
	return nil
}

// Flatten concatenates every group's keywords in configured order.
func (g KeywordGroups) Flatten() []string {
	var out []string
	for _, group := range g {
		out = append(out, group.Keywords...)
	}
	return out
}

// UnmarshalYAML decodes a mapping of name -> list of strings.
func (g *KeywordGroups) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of keyword lists", value.Line)
	}

	groups := make(KeywordGroups, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, listNode := value.Content[i], value.Content[i+1]

		var keywords []string
		if err := listNode.Decode(&keywords); err != nil {
			return fmt.Errorf("group %q: %w", keyNode.Value, err)
		}
		groups = append(groups, KeywordGroup{Name: keyNode.Value, Keywords: keywords})
	}

	*g = groups
	return nil
}

// MarshalYAML renders the groups as an ordered mapping.
func (g KeywordGroups) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, group := range g {
		list := &yaml.Node{}
		if err := list.Encode(group.Keywords); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: group.Name},
			list,
		)
	}
	return node, nil
}
