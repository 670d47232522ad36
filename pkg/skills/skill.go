// Package skills discovers agent skills in source repositories. A skill is a
// directory containing a SKILL.md file whose YAML frontmatter describes it; a
// source is a directory with a skills/ folder holding one or more skills.
package skills

import (
	"github.com/pkg/errors"
)

const (
	// FileName is the marker file every skill directory contains
	FileName = "SKILL.md"
	// SourceSubdir is the folder under a source that holds skills
	SourceSubdir = "skills"

	// DefaultDescriptionWidth bounds descriptions in listing output
	DefaultDescriptionWidth = 100
)

// ErrNotASource is returned when a directory has no skills/ subdirectory
var ErrNotASource = errors.New("not a skill source")

// Skill represents a discovered skill with its metadata
type Skill struct {
	Name        string // Directory basename, unique within a source
	Description string // From the frontmatter description key, may be empty
	Directory   string // Absolute path to the skill directory
}

// Source is a directory containing a skills/ folder with at least one skill
type Source struct {
	Path string // Absolute, symlink-resolved path
}

// SkillsDir returns the skills/ folder of the source
func (s Source) SkillsDir() string {
	return skillsDir(s.Path)
}
