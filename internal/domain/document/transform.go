package document

import (
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

// Transformer преобразует документы между локальным (camelCase)
// и удаленным (snake_case) соглашениями об именовании.
type Transformer struct {
	log *slog.Logger
	// collection -> localField -> remoteField
	overrides map[string]map[string]string
	// collection -> remoteField -> localField
	reverse map[string]map[string]string
}

// DefaultOverrides возвращает таблицу нерегулярных имен полей
func DefaultOverrides() map[string]map[string]string {
	return map[string]map[string]string{
		"calendar_events": {
			"allDay": "is_all_day",
			"start":  "starts_at",
			"end":    "ends_at",
		},
		"memories": {
			"embedding": "embedding_vector",
		},
		"preferences": {
			"value": "pref_value",
		},
	}
}

// NewTransformer создает преобразователь с таблицей переопределений
func NewTransformer(log *slog.Logger, overrides map[string]map[string]string) *Transformer {
	t := &Transformer{
		log:       log.With("component", "field_transformer"),
		overrides: make(map[string]map[string]string, len(overrides)),
		reverse:   make(map[string]map[string]string, len(overrides)),
	}

	for collection, fields := range overrides {
		forward := make(map[string]string, len(fields))
		backward := make(map[string]string, len(fields))
		for local, remote := range fields {
			forward[local] = remote
			backward[remote] = local
		}
		t.overrides[collection] = forward
		t.reverse[collection] = backward
	}

	return t
}

// ToRemoteFormat рекурсивно переводит ключи документа в snake_case
func (t *Transformer) ToRemoteFormat(collection string, doc Document) Document {
	if doc == nil {
		return nil
	}
	return t.convertTop(doc, t.overrides[collection], CamelToSnake)
}

// ToLocalFormat рекурсивно переводит ключи документа в camelCase
func (t *Transformer) ToLocalFormat(collection string, doc Document) Document {
	if doc == nil {
		return nil
	}
	return t.convertTop(doc, t.reverse[collection], SnakeToCamel)
}

// TransformForPush удаляет локальные служебные поля и переводит документ в удаленный формат
func (t *Transformer) TransformForPush(collection string, doc Document) Document {
	clean := make(Document, len(doc))
	for k, v := range doc {
		if IsLocalOnlyField(k) {
			continue
		}
		clean[k] = v
	}
	return t.ToRemoteFormat(collection, clean)
}

// TransformForPull переводит удаленный документ в локальный формат.
// Документ без id не отбрасывается, только логируется предупреждение.
func (t *Transformer) TransformForPull(collection string, doc Document) Document {
	local := t.ToLocalFormat(collection, doc)
	if local.ID() == "" {
		t.log.Warn("pulled document has no id", "collection", collection)
	}
	return local
}

// IsLocalOnlyField сообщает, является ли поле служебным для локального хранилища
// (_rev, _meta, _deleted, _attachments и т.п.)
func IsLocalOnlyField(field string) bool {
	return strings.HasPrefix(field, "_")
}

func (t *Transformer) convertTop(doc Document, table map[string]string, conv func(string) string) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		key, ok := table[k]
		if !ok {
			key = conv(k)
		}
		out[key] = convertValue(v, conv)
	}
	return out
}

func convertMap(m map[string]any, conv func(string) string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[conv(k)] = convertValue(v, conv)
	}
	return out
}

func convertValue(v any, conv func(string) string) any {
	switch val := v.(type) {
	case time.Time, *time.Time:
		return val
	case Document:
		return Document(convertMap(val, conv))
	case map[string]any:
		return convertMap(val, conv)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item, conv)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = convertMap(item, conv)
		}
		return out
	}
	return v
}

// CamelToSnake заменяет каждую заглавную ASCII букву X на _x
func CamelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			b.WriteByte('_')
			b.WriteByte(c + ('a' - 'A'))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// SnakeToCamel заменяет каждое сочетание _x (x - строчная ASCII буква) на X
func SnakeToCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z' {
			b.WriteByte(s[i+1] - ('a' - 'A'))
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
