// Package noteparser parses and serializes the on-disk note format: YAML
// front matter delimited by "---" lines, followed by a markdown body.
// Parsing is implemented as a restartable scanner so the multi-note variant
// can recover from one malformed block without losing the rest of the
// buffer.
package noteparser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fnbdesign/git-notes-memory/internal/memerr"
)

const delimiter = "---"

// RequiredFields are the front-matter keys every note must carry.
var RequiredFields = []string{"type", "spec", "timestamp", "summary"}

// ParsedNote is the result of a successful parse. FrontMatter preserves
// the original YAML key order via yaml.Node so round-trip serialization
// is stable.
type ParsedNote struct {
	FrontMatter *yaml.Node
	Body        string
	Raw         string
}

// Get returns the scalar value of a front-matter key, or "" if absent.
func (p *ParsedNote) Get(key string) string {
	m := p.FrontMatter
	if m == nil || m.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1].Value
		}
	}
	return ""
}

// GetList returns a sequence-valued front-matter key as a string slice.
func (p *ParsedNote) GetList(key string) []string {
	m := p.FrontMatter
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		v := m.Content[i+1]
		if v.Kind != yaml.SequenceNode {
			return nil
		}
		out := make([]string, 0, len(v.Content))
		for _, item := range v.Content {
			out = append(out, item.Value)
		}
		return out
	}
	return nil
}

// Validate reports the required front-matter keys that are missing.
func (p *ParsedNote) Validate() []string {
	var missing []string
	for _, f := range RequiredFields {
		if p.Get(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Parse parses a single note block. Absence of either delimiter, or a
// front-matter value that isn't a YAML mapping, is a typed parse failure.
func Parse(raw string) (*ParsedNote, error) {
	body, fm, err := split(raw)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &node); err != nil {
			return nil, memerr.InvalidYAMLError.WithCause(err)
		}
	} else {
		node = yaml.Node{Kind: yaml.MappingNode}
	}

	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, memerr.InvalidYAMLError.WithCause(fmt.Errorf("front matter is not a mapping"))
	}
	normalizeTimestamps(root)

	return &ParsedNote{FrontMatter: root, Body: body, Raw: raw}, nil
}

// split locates the first "---"/"---" delimited block and returns the
// trimmed front matter text and the body following the closing delimiter.
func split(raw string) (body, frontMatter string, err error) {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return "", "", memerr.InvalidYAMLError.WithCause(fmt.Errorf("missing opening front-matter delimiter"))
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			frontMatter = strings.Join(lines[1:i], "\n")
			body = strings.Join(lines[i+1:], "\n")
			body = strings.TrimPrefix(body, "\n")
			return body, frontMatter, nil
		}
	}
	return "", "", memerr.InvalidYAMLError.WithCause(fmt.Errorf("missing closing front-matter delimiter"))
}

// normalizeTimestamps rewrites the "timestamp" scalar, if present, to a
// canonical UTC RFC3339 value. A bare date is accepted and treated as
// midnight UTC.
func normalizeTimestamps(m *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != "timestamp" {
			continue
		}
		v := m.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			continue
		}
		if t, ok := parseTimestamp(v.Value); ok {
			v.Value = t.UTC().Format(time.RFC3339)
			v.Tag = "!!str"
		}
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseMulti scans a buffer that may concatenate multiple note blocks.
// Unlike Parse, a malformed block is skipped rather than reported: the
// scanner seeks to the next opening delimiter at line start and resumes.
func ParseMulti(raw string) []*ParsedNote {
	var notes []*ParsedNote
	lines := strings.Split(raw, "\n")

	i := 0
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) != delimiter {
			i++
			continue
		}
		// find closing delimiter
		close := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == delimiter {
				close = j
				break
			}
		}
		if close == -1 {
			break // no closing delimiter anywhere further on; stop
		}

		blockEnd := len(lines)
		for k := close + 1; k < len(lines); k++ {
			if strings.TrimSpace(lines[k]) == delimiter {
				blockEnd = k
				break
			}
		}
		block := strings.Join(lines[i:blockEnd], "\n")
		if n, err := Parse(block); err == nil {
			notes = append(notes, n)
		}
		i = blockEnd
	}
	return notes
}

// Serialize renders front matter and body back into canonical note text:
// delimiters, the YAML mapping, and a trailing newline after the body.
func Serialize(frontMatter *yaml.Node, body string) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(frontMatter); err != nil {
		return "", memerr.Wrap(memerr.CategoryParse, "failed to serialize front matter", "", err)
	}
	enc.Close()

	var out strings.Builder
	out.WriteString(delimiter)
	out.WriteString("\n")
	out.WriteString(buf.String())
	out.WriteString(delimiter)
	out.WriteString("\n")
	out.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		out.WriteString("\n")
	}
	return out.String(), nil
}

// NewMapping builds a yaml.Node mapping from ordered key/value pairs,
// for callers constructing front matter programmatically (CaptureService).
func NewMapping(pairs ...[2]string) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, kv := range pairs {
		k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[0]}
		v := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[1]}
		m.Content = append(m.Content, k, v)
	}
	return m
}

// SetList adds or replaces a sequence-valued key in a mapping node.
func SetList(m *yaml.Node, key string, values []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = seq
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, seq)
}
