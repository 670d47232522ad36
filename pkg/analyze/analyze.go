// Package analyze runs mechanical structural checks over a skill directory:
// frontmatter shape, size, stray files, link integrity and scripts. It reports
// what it measured and leaves qualitative review to a human.
package analyze

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillet/pkg/frontmatter"
	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/skills"
)

// Status is the outcome of a single check
type Status string

const (
	Pass Status = "PASS"
	Warn Status = "WARN"
	Fail Status = "FAIL"
	Info Status = "INFO"
)

const (
	SectionStructure   = "STRUCTURE"
	SectionFrontmatter = "FRONTMATTER"
	SectionSize        = "SIZE"
	SectionFiles       = "FILES"
	SectionReferences  = "REFERENCES"
	SectionScripts     = "SCRIPTS"
)

const (
	maxNameLength        = 64
	minDescriptionLength = 50
	maxDescriptionLength = 1024
	maxLines             = 500
	maxBodyWords         = 5000
)

var (
	namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

	allowedKeys = map[string]bool{
		"name":          true,
		"description":   true,
		"license":       true,
		"allowed-tools": true,
		"metadata":      true,
		"compatibility": true,
	}

	extraneousFiles = map[string]bool{
		"README.md":             true,
		"INSTALLATION_GUIDE.md": true,
		"QUICK_REFERENCE.md":    true,
		"CHANGELOG.md":          true,
		"CONTRIBUTING.md":       true,
		"SETUP.md":              true,
	}
)

// Result is one line of the report
type Result struct {
	Section string
	Check   string
	Status  Status
	Detail  string
}

// Summary counts results by status. INFO results are not counted.
type Summary struct {
	Fail int
	Warn int
	Pass int
}

// Report is the ordered list of check results for one skill directory
type Report struct {
	Skill   string
	Dir     string
	Results []Result
}

func (r *Report) record(section, check string, status Status, detail string) {
	r.Results = append(r.Results, Result{Section: section, Check: check, Status: status, Detail: detail})
}

// Summary returns the status counts
func (r *Report) Summary() Summary {
	var s Summary
	for _, res := range r.Results {
		switch res.Status {
		case Fail:
			s.Fail++
		case Warn:
			s.Warn++
		case Pass:
			s.Pass++
		case Info:
		}
	}
	return s
}

// Failed reports whether any check failed
func (r *Report) Failed() bool {
	return r.Summary().Fail > 0
}

// Format writes the report grouped by section, ending with a summary line
func (r *Report) Format(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Skill Analysis: %s ===\n\n", r.Skill)

	current := ""
	for _, res := range r.Results {
		if res.Section != current {
			if current != "" {
				b.WriteString("\n")
			}
			b.WriteString(res.Section + "\n")
			current = res.Section
		}
		detail := ""
		if res.Detail != "" {
			detail = ": " + res.Detail
		}
		fmt.Fprintf(&b, "  %s: %s%s\n", res.Check, res.Status, detail)
	}

	s := r.Summary()
	fmt.Fprintf(&b, "\nSUMMARY: %d FAIL, %d WARN, %d PASS\n", s.Fail, s.Warn, s.Pass)

	_, err := io.WriteString(w, b.String())
	return err
}

// Analyze checks the skill directory at dir. The returned error is only set
// when dir itself cannot be inspected; problems with the skill are results.
func Analyze(ctx context.Context, dir string) (*Report, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", dir)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}

	report := &Report{Skill: filepath.Base(abs), Dir: abs}
	log := logger.G(ctx).WithField("skill_dir", abs)

	content, err := os.ReadFile(filepath.Join(abs, skills.FileName))
	if err != nil {
		log.WithError(err).Debug("cannot read skill file")
		report.record(SectionStructure, skills.FileName+" exists", Fail, skills.FileName+" not found")
		return report, nil
	}
	report.record(SectionStructure, skills.FileName+" exists", Pass, "")

	doc, parseErr := frontmatter.Parse(content)
	checkFrontmatter(report, doc, parseErr)
	checkSize(report, doc)

	files, err := listFiles(abs)
	if err != nil {
		return nil, err
	}
	checkFiles(report, files)

	links := relativeLinks([]byte(doc.Body))
	checkLinks(report, abs, links)
	checkReferences(report, abs, links)
	checkScripts(ctx, report, abs)

	log.WithField("results", len(report.Results)).Debug("analysis complete")
	return report, nil
}

func checkFrontmatter(r *Report, doc frontmatter.Document, parseErr error) {
	var malformed *frontmatter.MalformedError
	switch {
	case errors.As(parseErr, &malformed):
		r.record(SectionFrontmatter, "Valid frontmatter", Fail, "Invalid YAML: "+malformed.Err.Error())
		return
	case !doc.HasFrontmatter:
		r.record(SectionFrontmatter, "Valid frontmatter", Fail, "No YAML frontmatter found")
		return
	}
	r.record(SectionFrontmatter, "Valid frontmatter", Pass, "")

	var unexpected []string
	for key := range doc.Fields {
		if !allowedKeys[key] {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		r.record(SectionFrontmatter, "No unexpected keys", Warn, "Unexpected: "+strings.Join(unexpected, ", "))
	} else {
		r.record(SectionFrontmatter, "No unexpected keys", Pass, "")
	}

	name := doc.Meta.Name
	switch {
	case name == "":
		r.record(SectionFrontmatter, "Name present", Fail, "Missing 'name' field")
	case !namePattern.MatchString(name):
		r.record(SectionFrontmatter, "Name format", Fail, fmt.Sprintf("'%s' is not valid kebab-case", name))
	case len(name) > maxNameLength:
		r.record(SectionFrontmatter, "Name length", Fail, fmt.Sprintf("%d chars (max %d)", len(name), maxNameLength))
	default:
		r.record(SectionFrontmatter, "Name valid", Pass, name)
	}

	desc := doc.Meta.Description
	n := utf8.RuneCountInString(desc)
	switch {
	case desc == "":
		r.record(SectionFrontmatter, "Description present", Fail, "Missing 'description' field")
	case n < minDescriptionLength:
		r.record(SectionFrontmatter, "Description length", Warn, fmt.Sprintf("%d chars (recommend >= %d)", n, minDescriptionLength))
	case n > maxDescriptionLength:
		r.record(SectionFrontmatter, "Description length", Fail, fmt.Sprintf("%d chars (max %d)", n, maxDescriptionLength))
	default:
		r.record(SectionFrontmatter, "Description length", Pass, fmt.Sprintf("%d chars", n))
	}
}

func checkSize(r *Report, doc frontmatter.Document) {
	if doc.Lines > maxLines {
		r.record(SectionSize, skills.FileName+" line count", Warn, fmt.Sprintf("%d lines (recommend <= %d)", doc.Lines, maxLines))
	} else {
		r.record(SectionSize, skills.FileName+" line count", Pass, fmt.Sprintf("%d lines", doc.Lines))
	}

	words := len(strings.Fields(doc.Body))
	if words > maxBodyWords {
		r.record(SectionSize, "Body word count", Warn, fmt.Sprintf("%d words (recommend <= %d)", words, maxBodyWords))
	} else {
		r.record(SectionSize, "Body word count", Pass, fmt.Sprintf("%d words", words))
	}
}

// listFiles returns every non-hidden file below dir as a slash separated
// relative path, in lexical order
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", dir)
	}
	return files, nil
}

func checkFiles(r *Report, files []string) {
	dirs := map[string]bool{}
	var extraneous []string
	for _, f := range files {
		if top, _, nested := strings.Cut(f, "/"); nested {
			dirs[top] = true
		}
		if extraneousFiles[filepath.Base(f)] {
			extraneous = append(extraneous, f)
		}
	}

	present := make([]string, 0, len(dirs))
	for d := range dirs {
		present = append(present, d)
	}
	sort.Strings(present)
	if len(present) == 0 {
		r.record(SectionFiles, "Directories", Info, "none")
	} else {
		r.record(SectionFiles, "Directories", Info, strings.Join(present, ", "))
	}
	r.record(SectionFiles, "Total files", Info, fmt.Sprintf("%d", len(files)))

	if len(extraneous) > 0 {
		r.record(SectionFiles, "Extraneous files", Warn, strings.Join(extraneous, ", "))
	} else {
		r.record(SectionFiles, "Extraneous files", Pass, "none detected")
	}
}

func checkLinks(r *Report, dir string, links []string) {
	if len(links) == 0 {
		r.record(SectionReferences, "Link integrity", Info, "No internal links found")
		return
	}

	var broken []string
	for _, href := range links {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(linkPath(href)))); err != nil {
			broken = append(broken, href)
		}
	}
	if len(broken) > 0 {
		r.record(SectionReferences, "Link integrity", Fail, "Broken: "+strings.Join(broken, ", "))
		return
	}
	r.record(SectionReferences, "Link integrity", Pass, fmt.Sprintf("%d/%d links valid", len(links), len(links)))
}

func checkReferences(r *Report, dir string, links []string) {
	entries, err := os.ReadDir(filepath.Join(dir, "references"))
	if err != nil {
		r.record(SectionReferences, "References directory", Info, "No references/ directory")
		return
	}

	linked := map[string]bool{}
	for _, href := range links {
		p := linkPath(href)
		if strings.HasPrefix(p, "references/") {
			linked[filepath.Base(p)] = true
		}
	}

	var unlinked []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !linked[e.Name()] {
			unlinked = append(unlinked, e.Name())
		}
	}
	if len(unlinked) > 0 {
		r.record(SectionReferences, "Unlinked reference files", Warn, strings.Join(unlinked, ", "))
		return
	}
	r.record(SectionReferences, "All references linked", Pass, "")
}
