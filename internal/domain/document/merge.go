package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// FieldDiff расхождение одного поля между локальной и удаленной версиями
type FieldDiff struct {
	Field  string `json:"field"`
	Local  any    `json:"local"`
	Remote any    `json:"remote"`
}

// DeepMerge рекурсивно объединяет override поверх base.
// Вложенные объекты объединяются по ключам, остальные значения (включая массивы)
// заменяются целиком. nil в override не перезаписывает значение. Аргументы не изменяются.
func DeepMerge(base, override Document) Document {
	out := base.Clone()
	if out == nil {
		out = Document{}
	}
	mergeInto(out, override)
	return out
}

func mergeInto(dst map[string]any, src map[string]any) {
	for k, v := range src {
		if v == nil {
			continue
		}
		srcMap, srcIsMap := asPlainMap(v)
		dstMap, dstIsMap := asPlainMap(dst[k])
		if srcIsMap && dstIsMap {
			merged := cloneMap(dstMap)
			mergeInto(merged, srcMap)
			dst[k] = merged
			continue
		}
		dst[k] = cloneValue(v)
	}
}

func asPlainMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

// isDiffExcluded поля, которые всегда расходятся после записи и не несут данных
func isDiffExcluded(field string) bool {
	if IsLocalOnlyField(field) {
		return true
	}
	switch field {
	case FieldUpdatedAt, FieldLogicalClock, FieldOriginDeviceID:
		return true
	}
	return false
}

// DiffDocuments возвращает поля, сериализованные значения которых различаются.
// Результат отсортирован по имени поля.
func DiffDocuments(local, remote Document) []FieldDiff {
	keys := make(map[string]struct{}, len(local)+len(remote))
	for k := range local {
		keys[k] = struct{}{}
	}
	for k := range remote {
		keys[k] = struct{}{}
	}

	var diffs []FieldDiff
	for k := range keys {
		if isDiffExcluded(k) {
			continue
		}
		if !ValuesEqual(local[k], remote[k]) {
			diffs = append(diffs, FieldDiff{Field: k, Local: local[k], Remote: remote[k]})
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].Field < diffs[j].Field
	})
	return diffs
}

// ValuesEqual сравнивает значения по их JSON-представлению
func ValuesEqual(a, b any) bool {
	return bytes.Equal(serialize(a), serialize(b))
}

func serialize(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%#v", v))
	}
	return data
}
