package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/tasks.schema.json
var taskFileSchema []byte

const schemaURL = "tasks.schema.json"

// Problem is one violation found by CheckFile. Path uses the form
// "[2].due_date"; an empty path refers to the whole document.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// CheckFile validates a task file against the task file schema and
// reports every violation, unlike Load which stops at the first bad
// record. Duplicate identifiers are reported too. The returned error is
// reserved for files that cannot be read or are not JSON at all.
func CheckFile(path string) ([]Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	problems := []Problem{}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		collectProblems(&problems, ve)
	}
	problems = append(problems, duplicateIDs(doc)...)
	return problems, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(schemaURL, bytes.NewReader(taskFileSchema)); err != nil {
		return nil, fmt.Errorf("load task schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile task schema: %w", err)
	}
	return schema, nil
}

func collectProblems(out *[]Problem, ve *jsonschema.ValidationError) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Problem{Path: pointerToPath(ve.InstanceLocation), Message: ve.Message})
		return
	}
	for _, cause := range ve.Causes {
		collectProblems(out, cause)
	}
}

func duplicateIDs(doc any) []Problem {
	recs, ok := doc.([]any)
	if !ok {
		return nil
	}
	var out []Problem
	seen := map[float64]int{}
	for i, r := range recs {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		id, ok := m["id"].(float64)
		if !ok {
			continue
		}
		if first, dup := seen[id]; dup {
			out = append(out, Problem{
				Path:    fmt.Sprintf("[%d].id", i),
				Message: fmt.Sprintf("duplicate id %v, first used at [%d]", id, first),
			})
			continue
		}
		seen[id] = i
	}
	return out
}

// pointerToPath turns a JSON pointer like "/2/due_date" into "[2].due_date".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(strings.TrimPrefix(ptr, "#"), "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for _, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if part == "" {
			continue
		}
		if idx, err := strconv.Atoi(part); err == nil {
			fmt.Fprintf(&b, "[%d]", idx)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
