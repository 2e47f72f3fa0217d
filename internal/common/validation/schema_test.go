// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"required": ["jobId", "postedAt"],
	"properties": {
		"jobId":    {"type": "string", "minLength": 1},
		"postedAt": {"type": "string", "format": "date-time"},
		"quality":  {"type": "number", "minimum": 0, "maximum": 1},
		"trend":    {"type": "string", "enum": ["stable", "falling", "rising"]}
	}
}`

func TestRegistry_Validate(t *testing.T) {
	reg := NewRegistry().MustRegister("score-job-urgency", testSchema)

	tests := []struct {
		name       string
		variables  string
		wantValid  bool
		wantFields []string
	}{
		{
			name:      "valid",
			variables: `{"jobId":"job-1","postedAt":"2026-03-01T10:00:00Z","quality":0.4,"trend":"falling"}`,
			wantValid: true,
		},
		{
			name:       "missing required",
			variables:  `{"quality":0.4}`,
			wantValid:  false,
			wantFields: []string{"(root)", "(root)"},
		},
		{
			name:       "out of range and bad enum",
			variables:  `{"jobId":"job-1","postedAt":"2026-03-01T10:00:00Z","quality":1.5,"trend":"sideways"}`,
			wantValid:  false,
			wantFields: []string{"quality", "trend"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := reg.Validate("score-job-urgency", tt.variables)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)

			fields := make([]string, 0, len(res.Errors))
			for _, e := range res.Errors {
				fields = append(fields, e.Field)
			}
			if tt.wantValid {
				assert.Empty(t, fields)
			} else {
				assert.Equal(t, tt.wantFields, fields)
				assert.NotEmpty(t, res.Summary())
			}
		})
	}
}

func TestRegistry_UnknownTaskTypePasses(t *testing.T) {
	res, err := NewRegistry().Validate("unknown", `{"anything":true}`)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestRegistry_MalformedDocument(t *testing.T) {
	reg := NewRegistry().MustRegister("x", testSchema)
	_, err := reg.Validate("x", `{not json`)
	assert.Error(t, err)
}

func TestRegistry_RegisterRejectsBadSchema(t *testing.T) {
	err := NewRegistry().Register("x", `{"type": 12}`)
	assert.Error(t, err)
}
