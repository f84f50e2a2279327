package document

import (
	"encoding/json"
	"strconv"
	"time"
)

// Имена полей синхронизации в локальном формате
const (
	FieldID             = "id"
	FieldUserID         = "userId"
	FieldCreatedAt      = "createdAt"
	FieldUpdatedAt      = "updatedAt"
	FieldIsDeleted      = "isDeleted"
	FieldDeletedAt      = "deletedAt"
	FieldLogicalClock   = "logicalClock"
	FieldOriginDeviceID = "originDeviceId"
)

// IsMetadataField сообщает, относится ли поле к метаданным синхронизации
func IsMetadataField(field string) bool {
	switch field {
	case FieldID, FieldUserID, FieldCreatedAt, FieldUpdatedAt, FieldIsDeleted,
		FieldDeletedAt, FieldLogicalClock, FieldOriginDeviceID:
		return true
	}
	return false
}

// Document - непрозрачный документ коллекции вместе с метаданными синхронизации.
// Ключи находятся либо в локальном (camelCase), либо в удаленном (snake_case) формате.
type Document map[string]any

// Metadata типизированное представление SyncMetadata
type Metadata struct {
	ID             string
	UserID         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsDeleted      bool
	DeletedAt      time.Time
	LogicalClock   int64
	OriginDeviceID string
}

// MetadataOf извлекает метаданные из документа в локальном формате
func MetadataOf(doc Document) Metadata {
	return Metadata{
		ID:             doc.ID(),
		UserID:         doc.String(FieldUserID),
		CreatedAt:      doc.Time(FieldCreatedAt),
		UpdatedAt:      doc.UpdatedAt(),
		IsDeleted:      doc.IsDeleted(),
		DeletedAt:      doc.DeletedAt(),
		LogicalClock:   doc.LogicalClock(),
		OriginDeviceID: doc.String(FieldOriginDeviceID),
	}
}

// Apply записывает метаданные в документ. Нулевые значения времени пропускаются.
func (m Metadata) Apply(doc Document) {
	doc[FieldID] = m.ID
	doc[FieldUserID] = m.UserID
	if !m.CreatedAt.IsZero() {
		doc[FieldCreatedAt] = FormatTime(m.CreatedAt)
	}
	if !m.UpdatedAt.IsZero() {
		doc[FieldUpdatedAt] = FormatTime(m.UpdatedAt)
	}
	doc[FieldIsDeleted] = m.IsDeleted
	if m.IsDeleted && !m.DeletedAt.IsZero() {
		doc[FieldDeletedAt] = FormatTime(m.DeletedAt)
	}
	doc[FieldLogicalClock] = m.LogicalClock
	if m.OriginDeviceID != "" {
		doc[FieldOriginDeviceID] = m.OriginDeviceID
	}
}

func (d Document) ID() string {
	return d.String(FieldID)
}

func (d Document) UpdatedAt() time.Time {
	return d.Time(FieldUpdatedAt)
}

func (d Document) DeletedAt() time.Time {
	return d.Time(FieldDeletedAt)
}

func (d Document) LogicalClock() int64 {
	return d.Int(FieldLogicalClock)
}

func (d Document) IsDeleted() bool {
	return d.Bool(FieldIsDeleted)
}

// Bool возвращает логическое значение поля: bool, строка или число
func (d Document) Bool(field string) bool {
	v, ok := d[field]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	case int, int64, float64, json.Number:
		return d.Int(field) != 0
	}
	return false
}

// String возвращает строковое значение поля или пустую строку
func (d Document) String(field string) string {
	switch v := d[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	}
	return ""
}

// Int возвращает целочисленное значение поля независимо от того,
// как оно было декодировано (JSON отдает float64).
func (d Document) Int(field string) int64 {
	switch v := d[field].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int64(f)
		}
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Time разбирает поле-дату. Поддерживаются time.Time и строки ISO-8601.
func (d Document) Time(field string) time.Time {
	switch v := d[field].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		return ParseTime(v)
	}
	return time.Time{}
}

// Clone делает глубокую копию документа
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// ParseTime разбирает ISO-8601 строку, нулевое время при ошибке
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t
	}
	return time.Time{}
}

// TimeLayout формат дат документов: ISO-8601 с миллисекундами
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime форматирует время в ISO-8601 (UTC) с точностью до миллисекунд
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(TimeLayout)
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return Document(cloneMap(val))
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = cloneMap(item)
		}
		return out
	}
	return v
}
