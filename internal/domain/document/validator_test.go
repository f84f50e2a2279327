package document

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateSyncDocument(t *testing.T) {
	validator := NewValidator(DefaultRequiredFields())

	tests := []struct {
		name       string
		collection string
		doc        Document
		wantValid  bool
		wantErrors []string
	}{
		{
			name:       "valid task",
			collection: "tasks",
			doc:        Document{"id": "t1", "userId": "u1", "title": "Buy milk", "status": "todo"},
			wantValid:  true,
		},
		{
			name:       "task without title and status",
			collection: "tasks",
			doc:        Document{"id": "t1", "userId": "u1"},
			wantValid:  false,
			wantErrors: []string{
				"missing required field for tasks: title",
				"missing required field for tasks: status",
			},
		},
		{
			name:       "missing universal fields",
			collection: "notes",
			doc:        Document{"title": "n"},
			wantValid:  false,
			wantErrors: []string{
				"missing required field: id",
				"missing required field: userId",
			},
		},
		{
			name:       "blank string counts as missing",
			collection: "notes",
			doc:        Document{"id": "n1", "userId": "u1", "title": "  "},
			wantValid:  false,
			wantErrors: []string{"missing required field for notes: title"},
		},
		{
			name:       "unknown collection only checks universal fields",
			collection: "activity_log",
			doc:        Document{"id": "a1", "userId": "u1"},
			wantValid:  true,
		},
		{
			name:       "nil document",
			collection: "tasks",
			doc:        nil,
			wantValid:  false,
			wantErrors: []string{"document is nil"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validator.ValidateSyncDocument(tt.collection, tt.doc)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantErrors, res.Errors)
		})
	}
}

func TestValidationResult_Err(t *testing.T) {
	assert.NoError(t, ValidationResult{Valid: true}.Err())

	err := ValidationResult{Valid: false, Errors: []string{"a", "b"}}.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDocument))
	assert.Contains(t, err.Error(), "a; b")
}

func TestMetadata_RoundTrip(t *testing.T) {
	updated := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	meta := Metadata{
		ID:             "t1",
		UserID:         "u1",
		UpdatedAt:      updated,
		LogicalClock:   7,
		OriginDeviceID: "dev-1",
	}

	doc := Document{}
	meta.Apply(doc)

	got := MetadataOf(doc)
	assert.Equal(t, meta.ID, got.ID)
	assert.Equal(t, meta.UserID, got.UserID)
	assert.True(t, updated.Equal(got.UpdatedAt))
	assert.Equal(t, int64(7), got.LogicalClock)
	assert.Equal(t, "dev-1", got.OriginDeviceID)
	assert.False(t, got.IsDeleted)
}

func TestDocument_Accessors(t *testing.T) {
	doc := Document{
		"logicalClock": float64(12),
		"isDeleted":    "true",
		"updatedAt":    "2024-01-01T10:00:00.123Z",
	}

	assert.Equal(t, int64(12), doc.LogicalClock())
	assert.True(t, doc.IsDeleted())
	assert.Equal(t, 123*time.Millisecond, time.Duration(doc.UpdatedAt().Nanosecond()))
	assert.True(t, doc.DeletedAt().IsZero())
}
