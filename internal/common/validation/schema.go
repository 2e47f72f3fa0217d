// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins the errors into one line suitable for a BPMN error message.
func (r *ValidationResult) Summary() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// Registry holds compiled job-variable schemas keyed by task type.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*gojsonschema.Schema)}
}

// Register compiles a JSON schema document for taskType.
func (r *Registry) Register(taskType, schema string) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", taskType, err)
	}

	r.mu.Lock()
	r.schemas[taskType] = compiled
	r.mu.Unlock()
	return nil
}

// MustRegister is Register for package-level schemas known to be valid.
func (r *Registry) MustRegister(taskType, schema string) *Registry {
	if err := r.Register(taskType, schema); err != nil {
		panic(err)
	}
	return r
}

// Validate checks raw job variables against the schema for taskType.
// Task types without a schema always validate.
func (r *Registry) Validate(taskType, variables string) (*ValidationResult, error) {
	r.mu.RLock()
	schema, ok := r.schemas[taskType]
	r.mu.RUnlock()
	if !ok {
		return &ValidationResult{Valid: true}, nil
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(variables))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.SliceStable(out.Errors, func(i, j int) bool {
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out, nil
}
