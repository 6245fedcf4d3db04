// Package source decides which topics a change event of the graph store is
// published to. Routes are read from
// "streams.source.topic.nodes.<topic>" and
// "streams.source.topic.relationships.<topic>" properties whose values are
// label or relationship-type patterns such as "Person:Customer{name,-ssn}".
package source

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
)

// KeyStrategy selects which endpoint properties identify the nodes of a
// relationship event.
type KeyStrategy string

const (
	// KeyStrategyDefault keys an endpoint by the first matching constraint.
	KeyStrategyDefault KeyStrategy = "DEFAULT"
	// KeyStrategyAll keys an endpoint by every constrained property.
	KeyStrategyAll KeyStrategy = "ALL"
)

// ParseKeyStrategy reads s case-insensitively. Unknown values fall back to
// KeyStrategyDefault and report false.
func ParseKeyStrategy(s string) (KeyStrategy, bool) {
	switch KeyStrategy(strings.ToUpper(strings.TrimSpace(s))) {
	case KeyStrategyAll:
		return KeyStrategyAll, true
	case KeyStrategyDefault:
		return KeyStrategyDefault, true
	default:
		return KeyStrategyDefault, false
	}
}

const (
	wildcard       = "*"
	excludePrefix  = "-"
	routeSeparator = ";"
	backtick       = "`"
	maxTopicLength = 249
)

var (
	routePattern   = regexp.MustCompile("^(\\s*:*\\s*`*\\s*\\w+\\s*(?::*\\s*`*\\s*:?(?:[\\w`|*]+)\\s*)*`*:?)\\s*(?:\\{\\s*(-?[\\w|*]+\\s*(?:,\\s*-?[\\w|*]+\\s*)*)\\})?$")
	propertySplit  = regexp.MustCompile(`\s*,\s*`)
	topicNameChars = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Properties is the property selection of a route.
type Properties struct {
	All     bool
	Include []string
	Exclude []string
}

// Filter applies the selection to props. A nil map stays nil.
func (p Properties) Filter(props map[string]any) map[string]any {
	if props == nil || p.All {
		return props
	}
	out := make(map[string]any, len(props))
	switch {
	case len(p.Include) > 0:
		for k, v := range props {
			if slices.Contains(p.Include, k) {
				out[k] = v
			}
		}
	case len(p.Exclude) > 0:
		for k, v := range props {
			if !slices.Contains(p.Exclude, k) {
				out[k] = v
			}
		}
	default:
		return props
	}
	return out
}

func parseProperties(raw string) Properties {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Properties{All: true}
	}
	var p Properties
	for _, prop := range propertySplit.Split(raw, -1) {
		switch {
		case prop == wildcard:
			p.All = true
		case strings.HasPrefix(prop, excludePrefix):
			p.Exclude = append(p.Exclude, strings.TrimPrefix(prop, excludePrefix))
		default:
			p.Include = append(p.Include, prop)
		}
	}
	return p
}

// NodeRoute sends node events carrying any of Labels to Topic. An empty
// Labels matches every node.
type NodeRoute struct {
	Topic  string
	Labels []string
	Properties
}

// RelationshipRoute sends relationship events of type Name to Topic. An
// empty Name matches every relationship.
type RelationshipRoute struct {
	Topic       string
	Name        string
	KeyStrategy KeyStrategy
	Properties
}

// ValidateTopic checks topic against the broker naming rules.
func ValidateTopic(topic string) error {
	switch {
	case topic == "":
		return errspkg.NewConfigurationError("topic name is empty")
	case topic == "." || topic == "..":
		return errspkg.NewConfigurationError("topic name cannot be %q", topic)
	case len(topic) > maxTopicLength:
		return errspkg.NewConfigurationError("topic name %s is longer than %d characters", topic, maxTopicLength)
	case !topicNameChars.MatchString(topic):
		return errspkg.NewConfigurationError("topic name %s contains characters other than ASCII alphanumerics, '.', '_' and '-'", topic)
	}
	return nil
}

func invalidPattern(pattern, topic string) error {
	return errspkg.NewConfigurationError("the pattern %s for topic %s is invalid", pattern, topic)
}

// ParseNodeRoutes parses a ';' separated list of label patterns bound to
// topic. "*" routes every node.
func ParseNodeRoutes(topic, pattern string) ([]NodeRoute, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if pattern == wildcard {
		return []NodeRoute{{Topic: topic, Properties: Properties{All: true}}}, nil
	}

	var routes []NodeRoute
	for _, part := range strings.Split(pattern, routeSeparator) {
		groups := routePattern.FindStringSubmatch(part)
		if groups == nil {
			return nil, invalidPattern(pattern, topic)
		}
		var labels []string
		for _, label := range splitLabels(strings.TrimSpace(groups[1])) {
			if strings.TrimSpace(label) != "" {
				labels = append(labels, label)
			}
		}
		routes = append(routes, NodeRoute{Topic: topic, Labels: labels, Properties: parseProperties(groups[2])})
	}
	return routes, nil
}

// ParseRelationshipRoutes parses a ';' separated list of relationship-type
// patterns bound to topic. "*" routes every relationship.
func ParseRelationshipRoutes(topic, pattern string, keyStrategy KeyStrategy) ([]RelationshipRoute, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if keyStrategy == "" {
		keyStrategy = KeyStrategyDefault
	}
	if pattern == wildcard {
		return []RelationshipRoute{{Topic: topic, KeyStrategy: keyStrategy, Properties: Properties{All: true}}}, nil
	}

	var routes []RelationshipRoute
	for _, part := range strings.Split(pattern, routeSeparator) {
		groups := routePattern.FindStringSubmatch(part)
		if groups == nil {
			return nil, invalidPattern(pattern, topic)
		}
		names := splitLabels(groups[1])
		if len(names) > 1 {
			return nil, invalidPattern(pattern, topic)
		}
		routes = append(routes, RelationshipRoute{
			Topic:       topic,
			Name:        names[0],
			KeyStrategy: keyStrategy,
			Properties:  parseProperties(groups[2]),
		})
	}
	return routes, nil
}

// splitLabels splits s on colons outside backticks, trims the whitespace
// around every part and drops the backticks. Whitespace quoted by
// backticks is kept.
func splitLabels(s string) []string {
	var parts []string
	var cur strings.Builder
	quoted := false
	flush := func() {
		part := strings.TrimSpace(cur.String())
		parts = append(parts, strings.ReplaceAll(part, backtick, ""))
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case string(r) == backtick:
			quoted = !quoted
			cur.WriteRune(r)
		case r == ':' && !quoted:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return parts
}

func (r NodeRoute) String() string {
	return fmt.Sprintf("%s <- nodes %v", r.Topic, r.Labels)
}

func (r RelationshipRoute) String() string {
	return fmt.Sprintf("%s <- relationships %q (%s)", r.Topic, r.Name, r.KeyStrategy)
}
