// Package pattern parses the node and relationship extraction patterns used
// by pattern topics, e.g. "(:Person{!id,name})" or
// "(:Person{!id})-[:KNOWS{since}]->(:Person{!id})".
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Type tells which payload properties a pattern copies onto the entity.
type Type string

const (
	// TypeAll copies every property that is not a key.
	TypeAll Type = "ALL"
	// TypeInclude copies only the listed properties.
	TypeInclude Type = "INCLUDE"
	// TypeExclude copies every property except the listed ones.
	TypeExclude Type = "EXCLUDE"
)

const (
	keyPrefix          = "!"
	excludePrefix      = "-"
	labelSeparator     = ":"
	propertySeparator  = ","
	allPropertiesToken = "*"
)

var (
	cypherNodePattern = regexp.MustCompile(`^\((:\w+\s*(?::\s*(?:\w+)\s*)*)\s*(?:\{\s*(-?[\w!\.]+\s*(?:,\s*-?[!\w\*\.]+\s*)*)\})?\)$`)
	simpleNodePattern = regexp.MustCompile(`^(\w+\s*(?::\s*(?:\w+)\s*)*)\s*(?:\{\s*(-?[\w!\.]+\s*(?:,\s*-?[!\w\*\.]+\s*)*)\})?$`)

	cypherRelationshipPattern = regexp.MustCompile(`^\(:(.*?)\)(<)?-\[:(\w+)(\{\s*(-?[\w\*\.]+\s*(?:,\s*-?[\w\*\.]+\s*)*)\})?\]-(>)?\(:(.*?)\)$`)
	simpleRelationshipPattern = regexp.MustCompile(`^(.*?) (\w+)(\{\s*(-?[\w\*\.]+\s*(?:,\s*-?[\w\*\.]+\s*)*)\})? (.*?)$`)
)

// NodeConfig describes how a payload maps onto a node.
type NodeConfig struct {
	Keys       []string
	Type       Type
	Labels     []string
	Properties []string
}

// RelationshipConfig describes how a payload maps onto a relationship and its
// two endpoint nodes.
type RelationshipConfig struct {
	Start      NodeConfig
	End        NodeConfig
	RelType    string
	Type       Type
	Properties []string
}

// ParseNode parses a node pattern in either the cypher form
// "(:LabelA:LabelB{!id,foo})" or the simple form "LabelA:LabelB{!id,foo}".
func ParseNode(p string) (NodeConfig, error) {
	isCypher := strings.HasPrefix(p, "(")
	re := simpleNodePattern
	if isCypher {
		re = cypherNodePattern
	}
	groups := re.FindStringSubmatch(p)
	if groups == nil {
		return NodeConfig{}, fmt.Errorf("the node pattern %s is invalid", p)
	}

	rawLabels := strings.Split(groups[1], labelSeparator)
	if isCypher {
		rawLabels = rawLabels[1:]
	}
	labels := make([]string, 0, len(rawLabels))
	for _, label := range rawLabels {
		labels = append(labels, strings.TrimSpace(label))
	}

	var keys, properties []string
	for _, prop := range strings.Split(groups[2], propertySeparator) {
		prop = strings.TrimSpace(prop)
		if strings.HasPrefix(prop, keyPrefix) {
			keys = appendUnique(keys, strings.TrimPrefix(prop, keyPrefix))
			continue
		}
		if prop != "" {
			properties = append(properties, prop)
		}
	}
	if len(keys) == 0 {
		return NodeConfig{}, fmt.Errorf("the node pattern %s must contain at least one key", p)
	}

	typ := typeOf(properties)
	if !isHomogeneous(typ, properties) {
		return NodeConfig{}, fmt.Errorf("the node pattern %s is not homogeneous", p)
	}

	return NodeConfig{
		Keys:       keys,
		Type:       typ,
		Labels:     labels,
		Properties: clean(typ, properties),
	}, nil
}

// ParseRelationship parses a relationship pattern in the cypher form
// "(:Start{!id})-[:TYPE{a,b}]->(:End{!id})" (either direction, or undirected)
// or the simple form "Start{!id} TYPE{a,b} End{!id}".
func ParseRelationship(p string) (RelationshipConfig, error) {
	invalid := fmt.Errorf("the relationship pattern %s is invalid", p)

	var startPattern, endPattern, relType, propGroup string
	if strings.HasPrefix(p, "(") {
		groups := cypherRelationshipPattern.FindStringSubmatch(p)
		if groups == nil {
			return RelationshipConfig{}, invalid
		}
		left, right := groups[2], groups[6]
		switch {
		case left == "" && (right == "" || right == ">"):
			startPattern, endPattern = groups[1], groups[7]
		case left == "<" && right == "":
			startPattern, endPattern = groups[7], groups[1]
		default:
			return RelationshipConfig{}, fmt.Errorf("the relationship pattern %s has an invalid direction", p)
		}
		relType, propGroup = groups[3], groups[5]
	} else {
		groups := simpleRelationshipPattern.FindStringSubmatch(p)
		if groups == nil {
			return RelationshipConfig{}, invalid
		}
		startPattern, endPattern = groups[1], groups[5]
		relType, propGroup = groups[2], groups[4]
	}

	start, err := endpointConfig(startPattern)
	if err != nil {
		return RelationshipConfig{}, invalid
	}
	end, err := endpointConfig(endPattern)
	if err != nil {
		return RelationshipConfig{}, invalid
	}

	var properties []string
	if strings.TrimSpace(propGroup) != "" {
		for _, prop := range strings.Split(propGroup, propertySeparator) {
			properties = append(properties, strings.TrimSpace(prop))
		}
	}
	typ := typeOf(properties)
	if !isHomogeneous(typ, properties) {
		return RelationshipConfig{}, fmt.Errorf("the relationship pattern %s is not homogeneous", p)
	}

	return RelationshipConfig{
		Start:      start,
		End:        end,
		RelType:    relType,
		Type:       typ,
		Properties: clean(typ, properties),
	}, nil
}

// endpointConfig parses a relationship endpoint. Endpoints never copy every
// payload property, so ALL is narrowed to INCLUDE.
func endpointConfig(p string) (NodeConfig, error) {
	cfg, err := ParseNode(p)
	if err != nil {
		return NodeConfig{}, err
	}
	if cfg.Type == TypeAll {
		cfg.Type = TypeInclude
	}
	return cfg, nil
}

func typeOf(properties []string) Type {
	if len(properties) == 0 {
		return TypeAll
	}
	switch {
	case strings.HasPrefix(properties[0], allPropertiesToken):
		return TypeAll
	case strings.HasPrefix(properties[0], excludePrefix):
		return TypeExclude
	default:
		return TypeInclude
	}
}

func isHomogeneous(typ Type, properties []string) bool {
	switch typ {
	case TypeInclude:
		for _, prop := range properties {
			r := []rune(prop)[0]
			if !unicode.IsLetter(r) && r != '_' && r != '$' {
				return false
			}
		}
		return true
	case TypeExclude:
		for _, prop := range properties {
			if !strings.HasPrefix(prop, excludePrefix) {
				return false
			}
		}
		return true
	default:
		return len(properties) == 0 || (len(properties) == 1 && properties[0] == allPropertiesToken)
	}
}

func clean(typ Type, properties []string) []string {
	switch typ {
	case TypeInclude:
		return properties
	case TypeExclude:
		cleaned := make([]string, 0, len(properties))
		for _, prop := range properties {
			cleaned = append(cleaned, strings.ReplaceAll(prop, excludePrefix, ""))
		}
		return cleaned
	default:
		return nil
	}
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
