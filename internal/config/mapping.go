package config

import (
	"fmt"

	"github.com/pbaille/timeline/internal/project"
	"gopkg.in/yaml.v3"
)

// Mapping is projects.mapping in file order. It decodes either a YAML
// mapping of pattern: project or a list of {pattern, project}.
type Mapping []project.Mapping

func (m *Mapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*m = nil
		return nil
	}
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Mapping, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: project mapping entries must be pattern: name", k.Line)
			}
			out = append(out, project.Mapping{Pattern: k.Value, Project: v.Value})
		}
		*m = out
		return nil
	case yaml.SequenceNode:
		var list []project.Mapping
		if err := node.Decode(&list); err != nil {
			return err
		}
		*m = list
		return nil
	default:
		return fmt.Errorf("line %d: projects.mapping must be a mapping or a list", node.Line)
	}
}

func (m Mapping) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, mp := range m {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: mp.Pattern},
			&yaml.Node{Kind: yaml.ScalarNode, Value: mp.Project},
		)
	}
	return node, nil
}
