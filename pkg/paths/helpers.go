package paths

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// procMounts is where the mount table is read from.
var procMounts = "/proc/self/mounts"

var mountUnescaper = strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)

// Join maps an image path onto the effective root on disk.
func Join(root, p string) string {
	return filepath.Join(root, filepath.Clean("/"+p))
}

// GetMounts returns mount points that live under root, as image paths.
// The root mount itself is never reported.
func GetMounts(root string) ([]string, error) {
	file, err := os.Open(procMounts)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	root = filepath.Clean(root)

	var dirs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		m := filepath.Clean(mountUnescaper.Replace(fields[1]))
		if root != "/" {
			if !PathFrom(m, []string{root}) {
				continue
			}
			m = filepath.Clean("/" + strings.TrimPrefix(m, root))
		}
		if m != "/" {
			dirs = append(dirs, m)
		}
	}
	return dirs, scanner.Err()
}

// PathFrom checks if a path originates from any of the listed paths.
var PathFrom = func(path string, list []string) bool {
	for _, base := range list {
		if path == base || base == "/" || strings.HasPrefix(path, base+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// PathContains checks if a path contains any of the listed paths.
var PathContains = func(path string, list []string) bool {
	for _, c := range list {
		p := strings.TrimRight(path, string(os.PathSeparator)) + string(os.PathSeparator)
		if path == c || strings.HasPrefix(c, p) {
			return true
		}
	}
	return false
}

// FileExists checks if the specified file exists.
var FileExists = func(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDirEmpty reports whether dir has no entries.
func IsDirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
