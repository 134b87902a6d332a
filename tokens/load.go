package tokens

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ramworld21/sda-auditor/style"
)

//go:embed default.yaml
var defaultTokensYAML []byte

// document mirrors the token file. Colors and spacing are decoded from nodes so
// that nested palettes keep their document order.
type document struct {
	Name       string     `yaml:"name"`
	Colors     yaml.Node  `yaml:"colors"`
	Spacing    yaml.Node  `yaml:"spacing"`
	Typography Typography `yaml:"typography"`
}

// Default returns the embedded SDA token set.
func Default() *DesignTokens {
	t, err := Parse(defaultTokensYAML)
	if err != nil {
		panic("embedded tokens are invalid: " + err.Error())
	}
	return t
}

// Load reads a YAML or JSON token file.
func Load(path string) (*DesignTokens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse tokens %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a token document. JSON is accepted since it is valid YAML.
func Parse(data []byte) (*DesignTokens, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var colors []Color
	if err := flattenColors(&doc.Colors, "", &colors); err != nil {
		return nil, err
	}

	spacing, err := parseSpacing(&doc.Spacing)
	if err != nil {
		return nil, err
	}

	return New(doc.Name, colors, spacing, doc.Typography)
}

func flattenColors(n *yaml.Node, prefix string, out *[]Color) error {
	switch n.Kind {
	case 0:
		return nil
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := flattenColors(c, prefix, out); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flattenColors(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			if err := flattenColors(c, fmt.Sprintf("%s[%d]", prefix, i), out); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		rgb, ok := style.ParseColor(n.Value)
		if !ok {
			return fmt.Errorf("color %s: invalid value %q (line %d)", prefix, n.Value, n.Line)
		}
		*out = append(*out, Color{Name: prefix, Value: rgb})
	case yaml.AliasNode:
		return flattenColors(n.Alias, prefix, out)
	}
	return nil
}

// parseSpacing accepts a list or a name->value mapping of ints or "Npx" strings.
func parseSpacing(n *yaml.Node) ([]int, error) {
	var scalars []*yaml.Node
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		scalars = n.Content
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			scalars = append(scalars, n.Content[i])
		}
	default:
		return nil, fmt.Errorf("spacing must be a list or mapping (line %d)", n.Line)
	}

	out := make([]int, 0, len(scalars))
	for _, s := range scalars {
		v := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(s.Value)), "px")
		px, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || px <= 0 {
			return nil, fmt.Errorf("spacing: invalid value %q (line %d)", s.Value, s.Line)
		}
		out = append(out, px)
	}
	return out, nil
}
