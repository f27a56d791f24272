// Пакет mergepatch — применение JSON Merge Patch (RFC 7386) к документам.
package mergepatch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Apply применяет patch к base и возвращает новый документ.
// null в patch удаляет поле, вложенные объекты сливаются рекурсивно,
// массивы и скаляры заменяются целиком. base не изменяется.
func Apply(base, patch map[string]any) (map[string]any, error) {
	if base == nil {
		base = map[string]any{}
	}
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации документа: %w", err)
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации патча: %w", err)
	}

	merged, err := jsonpatch.MergePatch(baseJSON, patchJSON)
	if err != nil {
		return nil, fmt.Errorf("ошибка применения merge patch: %w", err)
	}

	result := map[string]any{}
	if err := json.Unmarshal(merged, &result); err != nil {
		return nil, fmt.Errorf("ошибка разбора результата merge patch: %w", err)
	}
	return result, nil
}
