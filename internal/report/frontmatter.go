package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("report: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("report: malformed frontmatter")
)

// Metadata identifies a generated report.
type Metadata struct {
	Subject   string
	RunID     string
	Modules   []string
	RiskScore *float64
	CreatedAt time.Time
	Checksum  string
}

// ParseFrontMatter extracts the metadata block and body from a document that
// starts with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var envelope intelEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("report: parse frontmatter: %w", err)
	}
	meta, err := envelope.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, bytes.TrimPrefix(parts[1], []byte("\n")), nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	envelope := intelEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("report: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

type intelEnvelope struct {
	Intel intelMetadata `yaml:"intel"`
}

type intelMetadata struct {
	Subject   string   `yaml:"subject,omitempty"`
	Run       string   `yaml:"run,omitempty"`
	Modules   []string `yaml:"modules,omitempty"`
	RiskScore *float64 `yaml:"risk_score,omitempty"`
	Created   string   `yaml:"created"`
	Checksum  string   `yaml:"checksum,omitempty"`
}

func (e intelEnvelope) toMetadata() (Metadata, error) {
	created, err := parseTime(e.Intel.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: created: %v", ErrMalformedFrontMatter, err)
	}
	return Metadata{
		Subject:   e.Intel.Subject,
		RunID:     e.Intel.Run,
		Modules:   append([]string{}, e.Intel.Modules...),
		RiskScore: e.Intel.RiskScore,
		CreatedAt: created,
		Checksum:  e.Intel.Checksum,
	}, nil
}

func (e *intelEnvelope) fromMetadata(meta Metadata) {
	e.Intel.Subject = meta.Subject
	e.Intel.Run = meta.RunID
	e.Intel.Modules = append([]string{}, meta.Modules...)
	e.Intel.RiskScore = meta.RiskScore
	e.Intel.Created = meta.CreatedAt.UTC().Format(timeLayout)
	e.Intel.Checksum = meta.Checksum
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
