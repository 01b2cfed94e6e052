package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() map[string]any {
	return map[string]any{
		"version":     1,
		"style":       "unit",
		"description": "must be able to check out a connection",
		"poolOptions": map[string]any{"maxPoolSize": 1},
		"operations": []any{
			map[string]any{"name": "start", "target": "thread1"},
			map[string]any{"name": "checkOut", "thread": "thread1", "label": "conn"},
			map[string]any{"name": "waitForEvent", "event": "ConnectionCheckedOut", "count": 1},
		},
		"events": []any{
			map[string]any{"type": "ConnectionCheckedOut", "connectionId": 42, "address": 42},
		},
		"ignore": []any{"ConnectionPoolCreated"},
	}
}

func TestValidate_ValidDocument(t *testing.T) {
	require.NoError(t, Validate(validDoc()))
}

func TestValidate_NullErrorAllowed(t *testing.T) {
	doc := validDoc()
	doc["error"] = nil
	assert.NoError(t, Validate(doc))
}

func TestValidate_ErrorDescriptor(t *testing.T) {
	doc := validDoc()
	doc["error"] = map[string]any{
		"type":    "WaitQueueTimeoutError",
		"message": "Timed out while checking out a connection from connection pool",
		"address": 42,
	}
	assert.NoError(t, Validate(doc))
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc map[string]any)
		wantSub string
	}{
		{
			name:    "wrong version",
			mutate:  func(doc map[string]any) { doc["version"] = 2 },
			wantSub: "version",
		},
		{
			name:    "wrong style",
			mutate:  func(doc map[string]any) { doc["style"] = "integration" },
			wantSub: "style",
		},
		{
			name:    "missing operations",
			mutate:  func(doc map[string]any) { delete(doc, "operations") },
			wantSub: "operations",
		},
		{
			name:    "unknown top-level field",
			mutate:  func(doc map[string]any) { doc["expectations"] = []any{} },
			wantSub: "expectations",
		},
		{
			name: "unknown event type",
			mutate: func(doc map[string]any) {
				doc["events"] = []any{map[string]any{"type": "ConnectionExploded"}}
			},
			wantSub: "events",
		},
		{
			name: "unknown ignore kind",
			mutate: func(doc map[string]any) {
				doc["ignore"] = []any{"NotAnEvent"}
			},
			wantSub: "ignore",
		},
		{
			name: "negative wait",
			mutate: func(doc map[string]any) {
				doc["operations"] = []any{map[string]any{"name": "wait", "ms": -1}}
			},
			wantSub: "operations",
		},
		{
			name: "operation without name",
			mutate: func(doc map[string]any) {
				doc["operations"] = []any{map[string]any{"thread": "t"}}
			},
			wantSub: "operations",
		},
		{
			name: "negative pool option",
			mutate: func(doc map[string]any) {
				doc["poolOptions"] = map[string]any{"maxPoolSize": -5}
			},
			wantSub: "poolOptions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(doc)

			err := Validate(doc)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Fields)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}

func TestValidator_Reusable(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.NoError(t, v.Validate(validDoc()))
	}

	bad := validDoc()
	bad["version"] = 7
	assert.Error(t, v.Validate(bad))
	assert.NoError(t, v.Validate(validDoc()), "a failed validation must not poison the validator")
}

func TestFieldError_Error(t *testing.T) {
	assert.Equal(t, "events.0.type: conflicting values",
		(&FieldError{Path: "events.0.type", Message: "conflicting values"}).Error())
	assert.Equal(t, "bare", (&FieldError{Message: "bare"}).Error())
}
