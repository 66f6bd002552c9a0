package task

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// StorageKey is the gateway key holding the serialized collection.
const StorageKey = "tasks"

//go:embed tasks.schema.json
var schemaJSON []byte

const schemaURL = "tasks.schema.json"

// ErrMalformed is returned by Decode when the blob parses but does not hold
// a task collection.
var ErrMalformed = errors.New("malformed task blob")

// ValidationError represents a validation error with context.
type ValidationError struct {
	Path string // path to the offending value, e.g. "[2].title"
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add task schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile task schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Encode serializes c with 2-space indentation and a trailing newline.
// A nil collection encodes as an empty array.
func Encode(c Collection) ([]byte, error) {
	if c == nil {
		c = Collection{}
	}
	data, err := json.Marshal(c, jsontext.WithIndent("  "))
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates a persisted blob. A JSON null decodes to a nil
// collection, which callers treat like an absent key.
func Decode(data []byte) (Collection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ValidationError{Err: fmt.Errorf("%w: empty blob", ErrMalformed)}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw == nil {
		return nil, nil
	}

	if errs := Validate(raw); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, errors.Join(errs...))
	}

	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if errs := checkUniqueIDs(c); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, errors.Join(errs...))
	}
	return c, nil
}

// Validate checks a decoded JSON value against the task schema and returns
// one error per failing location.
func Validate(raw any) []error {
	s, err := compiledSchema()
	if err != nil {
		return []error{err}
	}
	if err := s.Validate(raw); err != nil {
		var errs []error
		appendSchemaErrors(&errs, err)
		return errs
	}
	return nil
}

func checkUniqueIDs(c Collection) []error {
	var errs []error
	seen := make(map[int64]int, len(c))
	for i, t := range c {
		if first, ok := seen[t.ID]; ok {
			errs = append(errs, &ValidationError{
				Path: fmt.Sprintf("[%d].id", i),
				Err:  fmt.Errorf("duplicate id %d (first used at [%d])", t.ID, first),
			})
			continue
		}
		seen[t.ID] = i
	}
	return errs
}

func appendSchemaErrors(errs *[]error, err error) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		*errs = append(*errs, err)
		return
	}
	collectSchemaErrors(errs, ve)
}

func collectSchemaErrors(errs *[]error, err *jsonschema.ValidationError) {
	if err == nil {
		return
	}

	if len(err.Causes) == 0 {
		*errs = append(*errs, &ValidationError{
			Path: jsonPointerToPath(err.InstanceLocation),
			Err:  errors.New(err.Message),
		})
		return
	}

	for _, cause := range err.Causes {
		collectSchemaErrors(errs, cause)
	}
}

// jsonPointerToPath converts "/2/title" into "[2].title".
func jsonPointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}

	var b strings.Builder
	for _, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
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
