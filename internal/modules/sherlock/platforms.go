package sherlock

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed platforms.yaml
var defaultPlatformsYAML []byte

// Error detection strategies.
const (
	ErrorStatusCode  = "status_code"
	ErrorMessage     = "message"
	ErrorResponseURL = "response_url"
)

// StringList decodes either a scalar or a sequence of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = StringList{node.Value}
		return nil
	}
	var values []string
	if err := node.Decode(&values); err != nil {
		return err
	}
	*l = values
	return nil
}

// IntList decodes either a scalar or a sequence of integers.
type IntList []int

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *IntList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var value int
		if err := node.Decode(&value); err != nil {
			return err
		}
		*l = IntList{value}
		return nil
	}
	var values []int
	if err := node.Decode(&values); err != nil {
		return err
	}
	*l = values
	return nil
}

// Platform describes how to probe one site for a username.
type Platform struct {
	Name           string         `yaml:"-"`
	URL            string         `yaml:"url"`
	URLMain        string         `yaml:"urlMain"`
	URLProbe       string         `yaml:"urlProbe"`
	ErrorType      StringList     `yaml:"errorType"`
	ErrorMsg       StringList     `yaml:"errorMsg"`
	ErrorCode      IntList        `yaml:"errorCode"`
	RegexCheck     string         `yaml:"regexCheck"`
	RequestMethod  string         `yaml:"request_method"`
	RequestPayload map[string]any `yaml:"request_payload"`
	Headers        map[string]any `yaml:"headers"`
	Tags           StringList     `yaml:"tags"`

	regex *regexp.Regexp
}

func (p Platform) detects(strategy string) bool {
	for _, t := range p.ErrorType {
		if t == strategy {
			return true
		}
	}
	return false
}

// DefaultPlatforms returns the embedded platform table.
func DefaultPlatforms() ([]Platform, error) {
	return ParsePlatforms(defaultPlatformsYAML)
}

// LoadPlatformsFile reads a platform table, such as sherlock's data.json.
func LoadPlatformsFile(path string) ([]Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sherlock: read %s: %w", path, err)
	}
	platforms, err := ParsePlatforms(data)
	if err != nil {
		return nil, fmt.Errorf("sherlock: %s: %w", path, err)
	}
	return platforms, nil
}

// ParsePlatforms decodes a name -> platform mapping, sorted by name. Entries
// without a url or error type are dropped.
func ParsePlatforms(data []byte) ([]Platform, error) {
	raw := map[string]yaml.Node{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode platforms: %w", err)
	}
	out := make([]Platform, 0, len(raw))
	for name, node := range raw {
		if strings.HasPrefix(name, "$") {
			continue
		}
		var platform Platform
		if err := node.Decode(&platform); err != nil {
			return nil, fmt.Errorf("decode platform %s: %w", name, err)
		}
		if strings.TrimSpace(platform.URL) == "" || len(platform.ErrorType) == 0 {
			continue
		}
		platform.Name = name
		if platform.RegexCheck != "" {
			// Patterns Go cannot compile (lookarounds) leave the platform unchecked.
			if re, err := regexp.Compile(platform.RegexCheck); err == nil {
				platform.regex = re
			}
		}
		out = append(out, platform)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
