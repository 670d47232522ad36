// Package targets maps consuming tools and install scopes to the skill
// installation roots those tools read from.
package targets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Tool identifies an agent tool that consumes skills
type Tool string

// Scope selects between the per-user and per-project roots
type Scope string

// Tools and scopes known to skillet
const (
	ToolClaude Tool = "claude"
	ToolCodex  Tool = "codex"

	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// Target is one tool and scope pair, e.g. claude-project
type Target struct {
	Tool  Tool
	Scope Scope
}

func (t Target) String() string {
	return string(t.Tool) + "-" + string(t.Scope)
}

// layout is the root directory of a tool relative to $HOME (global) or the
// working directory (project)
var layout = map[Tool]string{
	ToolClaude: filepath.Join(".claude", "skills"),
	ToolCodex:  filepath.Join(".agents", "skills"),
}

// AllTools returns every known tool in table order
func AllTools() []Tool {
	return []Tool{ToolClaude, ToolCodex}
}

// ParseTool converts a tool name into a Tool
func ParseTool(name string) (Tool, error) {
	tool := Tool(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := layout[tool]; !ok {
		return "", errors.Errorf("unknown tool %q: expected one of claude, codex", name)
	}
	return tool, nil
}

// Select returns the targets for the given tools in the given scope. An empty
// tool list selects every tool.
func Select(tools []Tool, scope Scope) []Target {
	if len(tools) == 0 {
		tools = AllTools()
	}
	result := make([]Target, 0, len(tools))
	seen := make(map[Tool]bool)
	for _, tool := range tools {
		if seen[tool] {
			continue
		}
		seen[tool] = true
		result = append(result, Target{Tool: tool, Scope: scope})
	}
	return result
}

// Resolver turns targets into root paths against explicit home and working
// directories
type Resolver struct {
	HomeDir string
	WorkDir string
}

// NewResolver creates a resolver for the current user and working directory
func NewResolver() (Resolver, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Resolver{}, errors.Wrap(err, "failed to get user home directory")
	}
	workDir, err := os.Getwd()
	if err != nil {
		return Resolver{}, errors.Wrap(err, "failed to get working directory")
	}
	return Resolver{HomeDir: homeDir, WorkDir: workDir}, nil
}

// Root returns the installation root of a target
func (r Resolver) Root(t Target) (string, error) {
	rel, ok := layout[t.Tool]
	if !ok {
		return "", errors.Errorf("unknown tool %q", t.Tool)
	}

	switch t.Scope {
	case ScopeGlobal:
		if r.HomeDir == "" {
			return "", errors.New("home directory is not set")
		}
		return filepath.Join(r.HomeDir, rel), nil
	case ScopeProject:
		base := r.WorkDir
		if base == "" {
			base = "."
		}
		return filepath.Join(base, rel), nil
	default:
		return "", errors.Errorf("unknown scope %q", t.Scope)
	}
}

// Describe returns a short human form like "claude (project: .claude/skills)"
func Describe(t Target) string {
	prefix := "./"
	if t.Scope == ScopeGlobal {
		prefix = "~/"
	}
	return string(t.Tool) + " (" + string(t.Scope) + ": " + prefix + filepath.ToSlash(layout[t.Tool]) + ")"
}
