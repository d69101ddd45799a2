// loader.go: Reading and decoding specification files
//
// JSON is the native format. YAML documents with the same keys are accepted
// as well, and hosts can register extra parsers that are tried before the
// built-in ones.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agilira/go-errors"
	"github.com/goccy/go-json"
	"go.yaml.in/yaml/v3"
)

// SpecFormat identifies the encoding of a specification file.
type SpecFormat int

const (
	FormatJSON SpecFormat = iota
	FormatYAML
)

// String returns the format name
func (f SpecFormat) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatYAML:
		return "YAML"
	default:
		return "Unknown"
	}
}

// SpecParser decodes raw bytes into a specification tree.
type SpecParser interface {
	Parse(data []byte) (Tree, error)

	// Supports returns true if the parser handles format
	Supports(format SpecFormat) bool

	// Name is used in error context
	Name() string
}

var (
	customParsers []SpecParser
	parserMutex   sync.RWMutex
)

// RegisterParser adds a parser that is consulted before the built-in ones.
//
// Example:
//
//	cinch.RegisterParser(&strictJSONParser{})
func RegisterParser(parser SpecParser) {
	parserMutex.Lock()
	defer parserMutex.Unlock()
	customParsers = append(customParsers, parser)
}

// DetectFormat picks the format from the file extension. Anything that is
// not .yaml or .yml is decoded as JSON.
func DetectFormat(path string) SpecFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadSpecification reads the file at path and decodes it into a Tree.
// The tree is not validated; pass it to Validate.
func LoadSpecification(path string) (Tree, error) {
	return LoadSpecificationAs(path, DetectFormat(path))
}

// LoadSpecificationAs is LoadSpecification with an explicit format
func LoadSpecificationAs(path string, format SpecFormat) (Tree, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New(ErrCodeInvalidSpecPath, "specification path is empty")
	}
	if err := validateSecurePath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(ErrCodeSpecNotFound, "specification file does not exist").
				WithContext("path", path)
		}
		return nil, errors.Wrap(err, ErrCodeSpecUnreadable, "cannot stat specification file").
			WithContext("path", path)
	}
	if info.IsDir() {
		return nil, errors.New(ErrCodeSpecUnreadable, "specification path is a directory").
			WithContext("path", path)
	}

	// #nosec G304 -- path checked by validateSecurePath
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeSpecUnreadable, "cannot read specification file").
			WithContext("path", path)
	}

	tree, err := ParseSpecification(data, format)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeSpecUnparsable, "specification file could not be parsed").
			WithContext("path", path)
	}
	return tree, nil
}

// ParseSpecification decodes data in the given format. Registered parsers
// are tried first.
func ParseSpecification(data []byte, format SpecFormat) (Tree, error) {
	parserMutex.RLock()
	for _, parser := range customParsers {
		if parser.Supports(format) {
			parserMutex.RUnlock()
			tree, err := parser.Parse(data)
			if err != nil {
				return nil, errors.Wrap(err, ErrCodeSpecUnparsable, "custom parser failed").
					WithContext("parser", parser.Name())
			}
			return tree, nil
		}
	}
	parserMutex.RUnlock()

	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML:
		return parseYAML(data)
	}
	return nil, errors.New(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported format: %s", format))
}

func parseJSON(data []byte) (Tree, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, ErrCodeSpecUnparsable, "invalid JSON")
	}
	return asTree(raw)
}

func parseYAML(data []byte) (Tree, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, ErrCodeSpecUnparsable, "invalid YAML")
	}
	return asTree(raw)
}

// asTree requires the document root to be an object. An empty document
// yields an empty tree, which Validate rejects.
func asTree(raw interface{}) (Tree, error) {
	switch root := raw.(type) {
	case nil:
		return Tree{}, nil
	case map[string]interface{}:
		return Tree(root), nil
	}
	return nil, errors.New(ErrCodeSpecUnparsable,
		fmt.Sprintf("specification root must be an object, got %s", typeName(raw)))
}

// validateSecurePath rejects paths that traverse upwards, carry encoded
// traversal sequences or control characters, or point at system locations.
func validateSecurePath(path string) error {
	for _, pattern := range []string{"..", "../", "..\\", "/..", "\\.."} {
		if strings.Contains(path, pattern) {
			return errors.New(ErrCodeInvalidSpecPath, "path contains traversal pattern: "+pattern)
		}
	}

	lower := strings.ToLower(path)
	for _, pattern := range []string{"%2e%2e", "%252e", "%2f", "%252f", "%5c", "%255c", "%00", "%2500"} {
		if strings.Contains(lower, pattern) {
			return errors.New(ErrCodeInvalidSpecPath, "path contains URL-encoded traversal pattern: "+pattern)
		}
	}

	for _, sensitive := range []string{"/etc/passwd", "/etc/shadow", "/proc/", "/sys/", "/dev/", ".ssh/", "windows/system32"} {
		if strings.Contains(lower, sensitive) {
			return errors.New(ErrCodeInvalidSpecPath, "access to system location not allowed: "+sensitive)
		}
	}

	if len(path) > 4096 {
		return errors.New(ErrCodeInvalidSpecPath, fmt.Sprintf("path too long (max 4096 characters): %d", len(path)))
	}
	if depth := strings.Count(path, "/") + strings.Count(path, "\\"); depth > 50 {
		return errors.New(ErrCodeInvalidSpecPath, fmt.Sprintf("path too complex (max 50 directory levels): %d", depth))
	}

	for _, char := range path {
		if char < 32 {
			return errors.New(ErrCodeInvalidSpecPath, fmt.Sprintf("control character in path not allowed: %d", char))
		}
	}
	return nil
}
