package report

import (
	"encoding/json"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// JSON writes a Document as indented JSON.
type JSON struct {
	Root        string
	Out         io.Writer
	ShowRemoved bool
}

func (r *JSON) Report(keep, removed []string) error {
	enc := json.NewEncoder(writer(r.Out))
	enc.SetIndent("", "  ")
	return enc.Encode(document(r.Root, keep, removed, r.ShowRemoved))
}

// YAML writes a Document as YAML.
type YAML struct {
	Root        string
	Out         io.Writer
	ShowRemoved bool
}

func (r *YAML) Report(keep, removed []string) error {
	enc := yaml.NewEncoder(writer(r.Out))
	enc.SetIndent(2)
	if err := enc.Encode(document(r.Root, keep, removed, r.ShowRemoved)); err != nil {
		return err
	}
	return enc.Close()
}

func writer(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
