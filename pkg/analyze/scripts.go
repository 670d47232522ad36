package analyze

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skillet/pkg/logger"
	"mvdan.cc/sh/v3/syntax"
)

func checkScripts(ctx context.Context, r *Report, dir string) {
	scriptsDir := filepath.Join(dir, "scripts")
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		r.record(SectionScripts, "Scripts directory", Info, "No scripts/ directory")
		return
	}

	var scripts []os.DirEntry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		scripts = append(scripts, e)
	}
	r.record(SectionScripts, "Scripts found", Info, fmt.Sprintf("%d", len(scripts)))

	for _, e := range scripts {
		name := e.Name()
		p := filepath.Join(scriptsDir, name)

		info, err := os.Stat(p)
		switch {
		case err != nil:
			r.record(SectionScripts, name+" executable", Warn, err.Error())
		case info.Mode().Perm()&0o111 == 0:
			r.record(SectionScripts, name+" executable", Warn, "Not marked executable")
		default:
			r.record(SectionScripts, name+" executable", Pass, "")
		}

		content, err := os.ReadFile(p)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("script", p).Debug("cannot read script")
			continue
		}
		variant, ok := shellVariant(name, content)
		if !ok {
			continue
		}
		parser := syntax.NewParser(syntax.Variant(variant))
		if _, err := parser.Parse(bytes.NewReader(content), name); err != nil {
			r.record(SectionScripts, name+" syntax", Fail, err.Error())
			continue
		}
		r.record(SectionScripts, name+" syntax", Pass, variant.String())
	}
}

// shellVariant decides whether a script is a shell script and which dialect
// to parse it with. The shebang wins over the extension.
func shellVariant(name string, content []byte) (syntax.LangVariant, bool) {
	line, _, _ := bufio.NewReader(bytes.NewReader(content)).ReadLine()
	shebang := string(line)
	if strings.HasPrefix(shebang, "#!") {
		fields := strings.Fields(strings.TrimPrefix(shebang, "#!"))
		if len(fields) > 0 {
			interp := filepath.Base(fields[0])
			if interp == "env" && len(fields) > 1 {
				interp = fields[1]
			}
			switch interp {
			case "bash":
				return syntax.LangBash, true
			case "sh", "dash":
				return syntax.LangPOSIX, true
			case "mksh":
				return syntax.LangMirBSDKorn, true
			default:
				return syntax.LangBash, false
			}
		}
	}

	switch filepath.Ext(name) {
	case ".sh", ".bash":
		return syntax.LangBash, true
	}
	return syntax.LangBash, false
}
