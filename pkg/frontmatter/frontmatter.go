// Package frontmatter parses the YAML metadata block at the top of SKILL.md
// files into a typed record. It is the only place in skillet that tolerates
// malformed input: when the block is not valid YAML a line scanner recovers
// the name and description so discovery can still list the skill.
package frontmatter

import (
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Metadata is the typed view of a SKILL.md frontmatter block
type Metadata struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	Extra       map[string]any `mapstructure:",remain"`
}

// Document is a parsed SKILL.md file
type Document struct {
	Meta           Metadata
	Body           string
	HasFrontmatter bool
	// Fields holds every top-level key found in the block
	Fields map[string]bool
	// Lines is the number of lines in the whole file
	Lines int
}

// MalformedError reports a frontmatter block that is not valid YAML. The
// document returned alongside it still carries whatever the line scanner
// could recover.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return "malformed frontmatter: " + e.Err.Error()
}

// Unwrap returns the underlying decode error
func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Parse splits content into frontmatter and body. Content without a
// frontmatter block (or with an unterminated one) yields a zero Metadata and
// the full content as body.
func Parse(content []byte) (Document, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	doc := Document{Body: text, Lines: countLines(text)}

	// attribution headers (consecutive "#" lines) may precede the opening
	// delimiter
	start := 0
	for start < len(lines) && strings.HasPrefix(lines[start], "#") {
		start++
	}
	if start >= len(lines) || strings.TrimSpace(lines[start]) != delimiter {
		return doc, nil
	}

	end := -1
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			end = i
			break
		}
	}
	if end == -1 {
		return doc, nil
	}

	block := lines[start+1 : end]
	// after a header, "---" may just be a horizontal rule under a heading
	if start > 0 {
		if _, keys := scan(block); len(keys) == 0 {
			return doc, nil
		}
	}
	doc.HasFrontmatter = true
	doc.Body = strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")

	meta, fields, err := decode(strings.Join(block, "\n"))
	if err != nil {
		doc.Meta, doc.Fields = scan(block)
		return doc, &MalformedError{Err: err}
	}
	doc.Meta = meta
	doc.Fields = fields
	return doc, nil
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Split(strings.TrimSuffix(text, "\n"), "\n"))
}

func decode(block string) (Metadata, map[string]bool, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return Metadata{}, nil, errors.Wrap(err, "failed to parse yaml")
	}

	fields := make(map[string]bool, len(raw))
	for k := range raw {
		fields[k] = true
	}

	var meta Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &meta,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Metadata{}, nil, errors.Wrap(err, "failed to create metadata decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return Metadata{}, nil, errors.Wrap(err, "failed to decode metadata")
	}

	meta.Name = strings.TrimSpace(meta.Name)
	meta.Description = strings.TrimSpace(meta.Description)
	return meta, fields, nil
}

// scan is the fallback for blocks yaml.v3 rejects. Only top-level
// "key: value" lines are recognised; block scalars continue while lines are
// indented deeper than their key.
func scan(block []string) (Metadata, map[string]bool) {
	var meta Metadata
	fields := make(map[string]bool)

	for i := 0; i < len(block); i++ {
		line := block[i]
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		indent := indentOf(line)
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || indent > 0 {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		fields[key] = true

		var continuation []string
		for i+1 < len(block) {
			next := block[i+1]
			if strings.TrimSpace(next) != "" && indentOf(next) <= indent {
				break
			}
			continuation = append(continuation, strings.TrimSpace(next))
			i++
		}

		var resolved string
		switch {
		case strings.HasPrefix(value, "|"):
			resolved = strings.Join(trimBlank(continuation), "\n")
		case strings.HasPrefix(value, ">"):
			resolved = fold(continuation)
		default:
			resolved = fold(append([]string{unquote(value)}, continuation...))
		}

		switch key {
		case "name":
			meta.Name = strings.TrimSpace(resolved)
		case "description":
			meta.Description = strings.TrimSpace(resolved)
		}
	}

	return meta, fields
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

// fold joins lines with single spaces; blank lines become paragraph breaks
func fold(lines []string) string {
	var b strings.Builder
	for _, l := range trimBlank(lines) {
		switch {
		case l == "":
			b.WriteString("\n")
		case b.Len() == 0 || strings.HasSuffix(b.String(), "\n"):
			b.WriteString(l)
		default:
			b.WriteString(" ")
			b.WriteString(l)
		}
	}
	return b.String()
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	switch {
	case v[0] == '"' && v[len(v)-1] == '"':
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
		return v[1 : len(v)-1]
	case v[0] == '\'' && v[len(v)-1] == '\'':
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}
