package cli

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	configpkg "github.com/drblury/graphsink/internal/runtime/config"
	"github.com/drblury/graphsink/internal/runtime/topics"
)

// LoadProperties reads the flat property map for a command. Nested YAML
// mappings are joined with dots, so
//
//	streams:
//	  sink:
//	    topic.cud: orders
//
// yields "streams.sink.topic.cud". Sequences become comma separated lists.
// Overrides of the form key=value are applied last.
func LoadProperties(path string, overrides []string) (map[string]string, error) {
	props := map[string]string{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := flattenYAML(data, props); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected key=value", o)
		}
		props[key] = value
	}
	return props, nil
}

// loadConfig reads the properties and parses them into a validated config.
func loadConfig(opts *RootOptions) (*configpkg.Config, error) {
	props, err := LoadProperties(opts.ConfigFile, opts.Overrides)
	if err != nil {
		return nil, err
	}
	conf, err := configpkg.FromProperties(props)
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func flattenYAML(data []byte, out map[string]string) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: top level must be a mapping", root.Line)
	}
	return flattenNode("", root, out)
}

func flattenNode(prefix string, n *yaml.Node, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flattenNode(key, n.Content[i+1], out); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %s: list items must be scalars", item.Line, prefix)
			}
			items = append(items, item.Value)
		}
		out[prefix] = strings.Join(items, ",")
	case yaml.ScalarNode:
		out[prefix] = n.Value
	case yaml.AliasNode:
		return flattenNode(prefix, n.Alias, out)
	default:
		return fmt.Errorf("line %d: %s: unsupported value", n.Line, prefix)
	}
	return nil
}

// databaseNames lists the databases the properties bind topics to, the
// default database first.
func databaseNames(props map[string]string, namespace, defaultDB string) []string {
	if namespace == "" {
		namespace = topics.DefaultNamespace
	}
	seen := map[string]bool{strings.ToLower(defaultDB): true}
	var extra []string
	for key := range props {
		if !strings.HasPrefix(key, namespace+".") {
			continue
		}
		i := strings.LastIndex(key, databaseSeparator)
		if i < 0 {
			continue
		}
		db := strings.ToLower(strings.TrimSpace(key[i+len(databaseSeparator):]))
		if db == "" || seen[db] {
			continue
		}
		seen[db] = true
		extra = append(extra, db)
	}
	sort.Strings(extra)
	return append([]string{defaultDB}, extra...)
}

const databaseSeparator = ".to."
