package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/kukaryambik/slimfs/pkg/filters"
	"github.com/kukaryambik/slimfs/pkg/paths"
)

var (
	dirStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	branchStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	targetStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	arrowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Faint(true)
	execStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	libStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	junkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Strikethrough(true)
)

// Text prints kept paths as a tree grouped by directory.
type Text struct {
	Root        string
	Out         io.Writer
	ShowRemoved bool
}

func (r *Text) Report(keep, removed []string) error {
	w := r.Out
	if w == nil {
		w = os.Stdout
	}

	var b strings.Builder
	lastDir := ""
	for i, p := range keep {
		dir := filepath.Dir(p)
		if dir != lastDir {
			lastDir = dir
			fmt.Fprintf(&b, "\n%s\n%s\n", dirStyle.Render(dir), branchStyle.Render("──┬──┄┄╌╌ ╌  ╌"))
		}

		leaf := "  ├─"
		if i == len(keep)-1 || filepath.Dir(keep[i+1]) != dir {
			leaf = "  ╰─"
		}
		fmt.Fprintf(&b, "%s %s\n", branchStyle.Render(leaf), r.entry(p))
	}

	if r.ShowRemoved && len(removed) > 0 {
		fmt.Fprintf(&b, "\n%s\n", dirStyle.Render("Removed"))
		for _, p := range removed {
			fmt.Fprintf(&b, "  %s\n", removedStyle.Render(p))
		}
	}

	s := summarize(r.Root, keep, removed)
	fmt.Fprintf(&b, "\nPreserved %d files, taking space: %s\n", s.Kept, humanize.Bytes(s.KeptBytes))
	fmt.Fprintf(&b, "Removing %d files, freeing: %s\n", s.Removed, humanize.Bytes(s.RemovedBytes))

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Text) entry(p string) string {
	name := filepath.Base(p)
	full := paths.Join(r.Root, p)

	fi, err := os.Lstat(full)
	if err != nil {
		return name
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		target, _ := os.Readlink(full)
		return fmt.Sprintf("%s %s %s", linkStyle.Render(name), arrowStyle.Render("→"), targetStyle.Render(target))
	case fi.IsDir():
		return dirStyle.Render(name + "/")
	case fi.Mode().Perm()&0o111 != 0:
		return execStyle.Render(name)
	case strings.HasSuffix(name, ".so") || strings.Contains(name, ".so."):
		return libStyle.Render(name)
	case IsJunk(name):
		return junkStyle.Render("! " + name)
	}
	return name
}

// IsJunk reports whether a kept file looks like something nobody runs:
// documentation, archives, sources or an all-caps stub such as NOTICE.
func IsJunk(name string) bool {
	lower := strings.ToLower(name)
	for _, tbl := range [][]string{filters.ArchiveSuffixes, filters.HeaderSuffixes} {
		for _, s := range tbl {
			if strings.HasSuffix(lower, s) {
				return true
			}
		}
	}
	if filters.IsDocFile(name) {
		return true
	}
	return strings.IndexFunc(name, unicode.IsLetter) >= 0 && name == strings.ToUpper(name)
}
