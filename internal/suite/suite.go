// Package suite reads benchmark suites from YAML, TOML or JSON files.
//
// A suite file holds a config and its test cases:
//
//	config:
//	  name: string concat
//	  parallel: false
//	  dataCode: const parts = ["a", "b", "c"]
//	cases:
//	  - id: join
//	    code: parts.join("")
//
// Cases without an id are given a generated one.
package suite

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/jsbench/internal/shared/id"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// Format is a suite file encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// File is a suite together with where it was read from
type File struct {
	Path  string
	Suite types.Suite
}

// DetectFormat picks a format from the file extension, falling back to
// content sniffing for JSON
func DetectFormat(path string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	if mimetype.Detect(data).Is("application/json") {
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown suite format for %s", path)
}

// Parse decodes data in the given format and normalizes the result
func Parse(format Format, data []byte) (*types.Suite, error) {
	var s types.Suite
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &s)
	case FormatTOML:
		err = toml.Unmarshal(data, &s)
	case FormatJSON:
		err = sonic.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("unsupported suite format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s suite: %w", format, err)
	}
	if err := normalize(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads one suite file. Files that are not UTF-8 are transcoded from
// their detected charset.
func Load(path string) (*types.Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := toUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	format, err := DetectFormat(path, data)
	if err != nil {
		return nil, err
	}
	s, err := Parse(format, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

var utf8BOM = []byte("\xef\xbb\xbf")

// toUTF8 returns data unchanged when it is UTF-8, otherwise decodes it from
// the charset chardet reports
func toUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return nil, fmt.Errorf("suite file is not valid UTF-8")
	}
	r, err := charset.NewReaderLabel(result.Charset, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("suite file charset %s: %w", result.Charset, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("suite file charset %s: %w", result.Charset, err)
	}
	return bytes.TrimPrefix(decoded, utf8BOM), nil
}

// Expand resolves glob patterns (with ** support) to a sorted, de-duplicated
// list of files. A directory expands to every suite file beneath it. A
// pattern that matches nothing is an error.
func Expand(patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		var matches []string
		var err error
		if info, statErr := os.Stat(pattern); statErr == nil && info.IsDir() {
			matches, err = walkDir(pattern)
		} else {
			matches, err = doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		}
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no suite files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// walkDir collects files with a suite extension under root
func walkDir(root string) ([]string, error) {
	var mu sync.Mutex
	var found []string
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml", ".toml", ".json":
			mu.Lock()
			found = append(found, p)
			mu.Unlock()
		}
		return nil
	})
	return found, err
}

// LoadAll expands patterns and loads every matching file
func LoadAll(patterns ...string) ([]File, error) {
	paths, err := Expand(patterns...)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: p, Suite: *s})
	}
	return files, nil
}

func normalize(s *types.Suite) error {
	seen := make(map[string]bool, len(s.Cases))
	for i := range s.Cases {
		tc := &s.Cases[i]
		if tc.ID == "" {
			tc.ID = id.NewCaseID().String()
		}
		if seen[tc.ID] {
			return fmt.Errorf("duplicate case id %q", tc.ID)
		}
		seen[tc.ID] = true
		if tc.Dependencies == nil {
			tc.Dependencies = []types.Dependency{}
		}
	}
	return nil
}
