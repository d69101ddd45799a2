// spec_writer.go: Editing and atomic writing of specification files
//
// Keys use dot notation. Numeric segments index into lists, so
// "commands.0.description" addresses the description of the first command.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/goccy/go-json"
	"go.yaml.in/yaml/v3"
)

// SpecWriter holds an editable copy of a specification tree and writes it
// back atomically. Only trees that pass Validate are written.
//
// Thread safety: safe for concurrent reads, serialized writes
type SpecWriter struct {
	filePath string
	format   SpecFormat

	tree         map[string]interface{}
	originalHash uint64

	auditLogger *AuditLogger

	mu      sync.RWMutex
	writing bool
}

// NewSpecWriter creates a writer for filePath starting from initial, which
// may be nil. The audit logger is optional.
func NewSpecWriter(filePath string, format SpecFormat, initial Tree, auditLogger *AuditLogger) (*SpecWriter, error) {
	if filePath == "" {
		return nil, errors.New(ErrCodeInvalidSpecPath, "filePath cannot be empty")
	}

	writer := &SpecWriter{
		filePath:    filePath,
		format:      format,
		auditLogger: auditLogger,
	}
	if initial != nil {
		writer.tree = deepCopyMap(initial)
		writer.originalHash = hashTree(writer.tree)
	} else {
		writer.tree = make(map[string]interface{})
	}
	return writer, nil
}

// SetValue sets the value at key, creating intermediate objects as needed.
// A list index equal to the list length appends.
//
//	writer.SetValue("version", "2.0.0")
//	writer.SetValue("commands.1.alias", "st")
func (w *SpecWriter) SetValue(key string, value interface{}) error {
	path := parseDotNotation(key)
	if len(path) == 0 {
		return errors.New(ErrCodeInvalidConfig, "key cannot be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writing {
		return errors.New(ErrCodeWatcherBusy, "writer is currently performing atomic write")
	}

	updated, err := setPath(w.tree, path, value)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to set value").
			WithContext("key", key)
	}
	w.tree = updated.(map[string]interface{})
	return nil
}

// GetValue returns the value at key, or nil if it does not exist
func (w *SpecWriter) GetValue(key string) interface{} {
	path := parseDotNotation(key)
	if len(path) == 0 {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var current interface{} = w.tree
	for _, segment := range path {
		next, ok := child(current, segment)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// DeleteValue removes key and reports whether it existed. Deleting a list
// element shifts the following elements down.
func (w *SpecWriter) DeleteValue(key string) bool {
	path := parseDotNotation(key)
	if len(path) == 0 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writing {
		return false
	}

	updated, deleted := deletePath(w.tree, path)
	if deleted {
		w.tree = updated.(map[string]interface{})
	}
	return deleted
}

// ListKeys returns every leaf key in dot notation, sorted, optionally
// restricted to keys starting with prefix
func (w *SpecWriter) ListKeys(prefix string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var keys []string
	collectKeys(w.tree, "", prefix, &keys)
	sort.Strings(keys)
	return keys
}

// HasChanges returns true if the tree differs from the last written state
func (w *SpecWriter) HasChanges() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return hashTree(w.tree) != w.originalHash
}

// Tree returns a deep copy of the current tree
func (w *SpecWriter) Tree() Tree {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return Tree(deepCopyMap(w.tree))
}

// Validate runs the specification validator over the current tree
func (w *SpecWriter) Validate() (*ToolSpecification, error) {
	return Validate(w.Tree())
}

// WriteSpec validates the tree and atomically replaces the file. Nothing is
// written when there are no changes.
func (w *SpecWriter) WriteSpec() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writing {
		return errors.New(ErrCodeWatcherBusy, "concurrent write operation in progress")
	}
	w.writing = true
	defer func() { w.writing = false }()

	currentHash := hashTree(w.tree)
	if currentHash == w.originalHash {
		if _, err := os.Stat(w.filePath); err == nil {
			return nil
		}
	}

	spec, err := Validate(Tree(w.tree))
	if err != nil {
		return err
	}

	data, err := serializeTree(w.tree, w.format)
	if err != nil {
		return err
	}
	if err := atomicWrite(w.filePath, data); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "atomic write failed").
			WithContext("path", w.filePath)
	}

	w.originalHash = currentHash
	w.auditLogger.LogSpecWritten(w.filePath, spec)
	return nil
}

// WriteSpecAs writes the tree to another path in the given format. The
// writer's own path and change state are left untouched.
func (w *SpecWriter) WriteSpecAs(filePath string, format SpecFormat) error {
	if filePath == "" {
		return errors.New(ErrCodeInvalidSpecPath, "filePath cannot be empty")
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	spec, err := Validate(Tree(w.tree))
	if err != nil {
		return err
	}

	data, err := serializeTree(w.tree, format)
	if err != nil {
		return err
	}
	if err := atomicWrite(filePath, data); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "atomic write failed").
			WithContext("path", filePath)
	}

	w.auditLogger.LogSpecWritten(filePath, spec)
	return nil
}

// parseDotNotation splits key on dots, dropping empty segments
func parseDotNotation(key string) []string {
	if !strings.Contains(key, ".") {
		if key = strings.TrimSpace(key); key == "" {
			return nil
		}
		return []string{key}
	}

	parts := strings.Split(key, ".")
	path := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			path = append(path, part)
		}
	}
	return path
}

func child(node interface{}, segment string) (interface{}, bool) {
	switch n := node.(type) {
	case map[string]interface{}:
		value, ok := n[segment]
		return value, ok
	case []interface{}:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(n) {
			return nil, false
		}
		return n[index], true
	}
	return nil, false
}

// setPath returns node with value stored at path. Lists may grow by one
// element, so the (possibly new) node is returned.
func setPath(node interface{}, path []string, value interface{}) (interface{}, error) {
	segment := path[0]
	switch n := node.(type) {
	case map[string]interface{}:
		if len(path) == 1 {
			n[segment] = value
			return n, nil
		}
		next, exists := n[segment]
		if !exists {
			next = make(map[string]interface{})
		}
		updated, err := setPath(next, path[1:], value)
		if err != nil {
			return nil, err
		}
		n[segment] = updated
		return n, nil

	case []interface{}:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index > len(n) {
			return nil, fmt.Errorf("'%s' is not a valid index for a list of %d elements", segment, len(n))
		}
		if index == len(n) {
			if len(path) == 1 {
				return append(n, value), nil
			}
			n = append(n, make(map[string]interface{}))
		}
		if len(path) == 1 {
			n[index] = value
			return n, nil
		}
		updated, err := setPath(n[index], path[1:], value)
		if err != nil {
			return nil, err
		}
		n[index] = updated
		return n, nil
	}
	return nil, fmt.Errorf("'%s' is %s, cannot set nested value", segment, typeName(node))
}

func deletePath(node interface{}, path []string) (interface{}, bool) {
	segment := path[0]
	switch n := node.(type) {
	case map[string]interface{}:
		next, exists := n[segment]
		if !exists {
			return n, false
		}
		if len(path) == 1 {
			delete(n, segment)
			return n, true
		}
		updated, deleted := deletePath(next, path[1:])
		if deleted {
			n[segment] = updated
		}
		return n, deleted

	case []interface{}:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(n) {
			return n, false
		}
		if len(path) == 1 {
			return append(n[:index:index], n[index+1:]...), true
		}
		updated, deleted := deletePath(n[index], path[1:])
		if deleted {
			n[index] = updated
		}
		return n, deleted
	}
	return node, false
}

func collectKeys(node interface{}, currentPrefix, filterPrefix string, keys *[]string) {
	join := func(segment string) string {
		if currentPrefix == "" {
			return segment
		}
		return currentPrefix + "." + segment
	}
	visit := func(fullKey string, value interface{}) {
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			// descend when the prefix can still match below this key
			if filterPrefix == "" || strings.HasPrefix(fullKey, filterPrefix) ||
				strings.HasPrefix(filterPrefix, fullKey+".") {
				collectKeys(value, fullKey, filterPrefix, keys)
			}
		default:
			if filterPrefix == "" || strings.HasPrefix(fullKey, filterPrefix) {
				*keys = append(*keys, fullKey)
			}
		}
	}

	switch n := node.(type) {
	case map[string]interface{}:
		for key, value := range n {
			visit(join(key), value)
		}
	case []interface{}:
		for i, value := range n {
			visit(join(strconv.Itoa(i)), value)
		}
	}
}

func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for key, value := range src {
		dst[key] = deepCopyValue(value)
	}
	return dst
}

func deepCopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return deepCopyMap(v)
	case Tree:
		return deepCopyMap(v)
	case []interface{}:
		dst := make([]interface{}, len(v))
		for i, item := range v {
			dst[i] = deepCopyValue(item)
		}
		return dst
	}
	return value
}

// hashTree fingerprints a tree for change detection. Map keys are encoded
// in sorted order, so equal trees hash equally.
func hashTree(tree map[string]interface{}) uint64 {
	data, err := json.Marshal(tree)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

func serializeTree(tree map[string]interface{}, format SpecFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeSpecUnparsable, "failed to encode JSON")
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(tree)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeSpecUnparsable, "failed to encode YAML")
		}
		return data, nil
	}
	return nil, errors.New(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported format: %s", format))
}

// atomicWrite writes to a temporary file in the target directory and
// renames it over path
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tempPath := filepath.Join(dir, "."+filepath.Base(path)+".tmp."+strconv.FormatInt(time.Now().UnixNano(), 10))

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
