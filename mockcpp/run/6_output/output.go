// Package output names, renders and writes the files holding generated mocks.
package output

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/akedrou/textdiff"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	generate "github.com/toejough/mockcpp/mockcpp/run/5_generate"
)

// Default file name template and guard prefix.
const (
	DefaultHppName     = "Mock{{.Interface}}.hpp"
	DefaultGuardPrefix = "MOCKCPP"
)

// DefaultHppTemplate is the header layout used when no file template is configured.
const DefaultHppTemplate = `#ifndef {{.Guard}}
#define {{.Guard}}

#include "{{.Include}}"

#include <memory>
#include <utility>

#include <gmock/gmock.h>

{{.Code}}
#endif // {{.Guard}}
`

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Writer interface for writing generated files.
type Writer interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// Reader interface for reading files already on disk.
type Reader interface {
	ReadFile(name string) ([]byte, error)
}

// Options controls file naming and layout.
type Options struct {
	Dir         string // output directory
	HppName     string // file name template; DefaultHppName when empty
	HppTemplate string // file content template; DefaultHppTemplate when empty
	CppName     string // companion source file name template; no source file when empty
	CppTemplate string
	GuardPrefix string
	SourcePath  string // header the mock was generated from
}

// File is one rendered output file.
type File struct {
	Path    string
	Content []byte
}

// Diff is the difference between a rendered file and its copy on disk.
type Diff struct {
	Path string
	Text string
}

// fileData is available to name and content templates.
type fileData struct {
	Interface          string // I2
	QualifiedInterface string // n1::I2
	TemplateInterface  string // T<Elem>, or the plain name
	Mock               string
	QualifiedMock      string
	MockFileHpp        string
	MockFileCpp        string
	GeneratedDir       string
	Guard              string
	Include            string // source header relative to the output directory
	SourceDir          string
	SourceFile         string
	NamespacesBegin    string
	NamespacesEnd      string
	NamespacePath      string // n1/n2, empty at global scope
	Template           string // template header line, empty for plain classes
	Class              string
	Code               string
}

// Render produces the header file, and the source file when configured, for one mock.
func Render(mock generate.Mock, opts Options) ([]File, error) {
	if opts.HppName == "" {
		opts.HppName = DefaultHppName
	}

	if opts.HppTemplate == "" {
		opts.HppTemplate = DefaultHppTemplate
	}

	if opts.GuardPrefix == "" {
		opts.GuardPrefix = DefaultGuardPrefix
	}

	iface := mock.Interface
	data := fileData{
		Interface:          iface.Name,
		QualifiedInterface: iface.QualifiedName(),
		TemplateInterface:  iface.Name,
		Mock:               mock.Name,
		QualifiedMock:      mock.QualifiedName(),
		GeneratedDir:       opts.Dir,
		Include:            includePath(opts.Dir, opts.SourcePath),
		SourceDir:          filepath.ToSlash(filepath.Dir(opts.SourcePath)),
		SourceFile:         filepath.Base(opts.SourcePath),
		NamespacesBegin:    namespacesBegin(iface.Scope),
		NamespacesEnd:      namespacesEnd(iface.Scope),
		NamespacePath:      strings.Join(iface.Scope, "/"),
		Class:              mock.Class,
		Code:               mock.Code,
	}

	if iface.IsTemplate() {
		data.TemplateInterface = iface.Name + "<" + iface.TemplateArgs() + ">"
		data.Template, _, _ = strings.Cut(mock.Class, "\n")
	}

	var err error

	data.MockFileHpp, err = execute("mock_file_hpp", opts.HppName, data)
	if err != nil {
		return nil, err
	}

	if opts.CppName != "" {
		data.MockFileCpp, err = execute("mock_file_cpp", opts.CppName, data)
		if err != nil {
			return nil, err
		}
	}

	hpp, err := renderFile(data, opts, data.MockFileHpp, opts.HppTemplate, "file_template_hpp")
	if err != nil {
		return nil, err
	}

	files := []File{hpp}

	if opts.CppName != "" && opts.CppTemplate != "" {
		cpp, err := renderFile(data, opts, data.MockFileCpp, opts.CppTemplate, "file_template_cpp")
		if err != nil {
			return nil, err
		}

		files = append(files, cpp)
	}

	return files, nil
}

func renderFile(data fileData, opts Options, name, content, key string) (File, error) {
	filePath := filepath.Join(opts.Dir, filepath.FromSlash(name))
	data.Guard = Guard(opts.GuardPrefix, filePath)

	text, err := execute(key, content, data)
	if err != nil {
		return File{}, err
	}

	return File{Path: filePath, Content: []byte(text)}, nil
}

func execute(key, text string, data fileData) (string, error) {
	tmpl, err := template.New(key).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errors.WithHint(errors.Wrapf(err, "parsing %s", key),
			"fields available to templates are those of the output file data, e.g. {{.Interface}}")
	}

	var buf bytes.Buffer

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", errors.Wrapf(err, "rendering %s", key)
	}

	return buf.String(), nil
}

// Guard returns a deterministic include guard for an output path: the prefix, the file name and a
// name-based UUID of the slash-separated path.
func Guard(prefix, filePath string) string {
	slashed := filepath.ToSlash(filepath.Clean(filePath))
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(slashed))

	return prefix + "_" + identifier(path.Base(slashed)) + "_" +
		strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}

func identifier(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}

		return '_'
	}, name)
}

func includePath(dir, source string) string {
	if source == "" {
		return ""
	}

	rel, err := filepath.Rel(dir, source)
	if err != nil {
		return filepath.ToSlash(source)
	}

	return filepath.ToSlash(rel)
}

func namespacesBegin(scope []string) string {
	lines := make([]string, len(scope))
	for i, name := range scope {
		lines[i] = "namespace " + name + " {"
	}

	return strings.Join(lines, "\n")
}

func namespacesEnd(scope []string) string {
	lines := make([]string, len(scope))
	for i, name := range scope {
		lines[len(scope)-1-i] = "} // namespace " + name
	}

	return strings.Join(lines, "\n")
}

// Write writes every file, creating directories as needed.
func Write(files []File, fileWriter Writer, out io.Writer) error {
	for _, file := range files {
		err := fileWriter.MkdirAll(filepath.Dir(file.Path), dirPerm)
		if err != nil {
			return errors.Wrapf(err, "creating directory for %s", file.Path)
		}

		err = fileWriter.WriteFile(file.Path, file.Content, filePerm)
		if err != nil {
			return errors.Wrapf(err, "error writing %s", file.Path)
		}

		_, _ = fmt.Fprintf(out, "%s written successfully.\n", file.Path)
	}

	return nil
}

// Check compares rendered files with their copies on disk and returns unified diffs for those that
// differ. A missing file differs from any content.
func Check(files []File, fileReader Reader) ([]Diff, error) {
	var diffs []Diff

	for _, file := range files {
		current, err := fileReader.ReadFile(file.Path)

		switch {
		case errors.Is(err, fs.ErrNotExist):
			current = nil
		case err != nil:
			return nil, errors.Wrapf(err, "reading %s", file.Path)
		}

		if bytes.Equal(current, file.Content) {
			continue
		}

		diffs = append(diffs, Diff{
			Path: file.Path,
			Text: textdiff.Unified(file.Path+" (on disk)", file.Path+" (generated)", string(current), string(file.Content)),
		})
	}

	return diffs, nil
}
