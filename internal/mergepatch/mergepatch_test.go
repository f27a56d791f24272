package mergepatch

import (
	"reflect"
	"testing"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		base  map[string]any
		patch map[string]any
		want  map[string]any
	}{
		{
			name:  "пустой патч",
			base:  map[string]any{"name": "Анна"},
			patch: map[string]any{},
			want:  map[string]any{"name": "Анна"},
		},
		{
			name:  "замена скаляра",
			base:  map[string]any{"name": "Анна", "picture": ""},
			patch: map[string]any{"name": "Борис"},
			want:  map[string]any{"name": "Борис", "picture": ""},
		},
		{
			name:  "null удаляет поле",
			base:  map[string]any{"name": "Анна", "picture": "x"},
			patch: map[string]any{"picture": nil},
			want:  map[string]any{"name": "Анна"},
		},
		{
			name:  "новое поле",
			base:  map[string]any{"barcode": "1"},
			patch: map[string]any{"checkoutID": "abc"},
			want:  map[string]any{"barcode": "1", "checkoutID": "abc"},
		},
		{
			name: "вложенный объект сливается",
			base: map[string]any{"permissions": map[string]any{
				"signIn":  false,
				"signOut": false,
			}},
			patch: map[string]any{"permissions": map[string]any{"signIn": true}},
			want: map[string]any{"permissions": map[string]any{
				"signIn":  true,
				"signOut": false,
			}},
		},
		{
			name:  "массив заменяется целиком",
			base:  map[string]any{"checkouts": []any{"a", "b"}},
			patch: map[string]any{"checkouts": []any{"c"}},
			want:  map[string]any{"checkouts": []any{"c"}},
		},
		{
			name:  "nil base",
			base:  nil,
			patch: map[string]any{"name": "x"},
			want:  map[string]any{"name": "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.base, tt.patch)
			if err != nil {
				t.Fatalf("Apply() вернул ошибку: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply() = %v, ожидали %v", got, tt.want)
			}
		})
	}
}

func TestApply_DoesNotMutateBase(t *testing.T) {
	base := map[string]any{"name": "Анна", "nested": map[string]any{"a": "1"}}
	if _, err := Apply(base, map[string]any{"name": nil, "nested": map[string]any{"a": "2"}}); err != nil {
		t.Fatalf("Apply() вернул ошибку: %v", err)
	}
	if base["name"] != "Анна" {
		t.Errorf("base изменён: name = %v", base["name"])
	}
	if base["nested"].(map[string]any)["a"] != "1" {
		t.Errorf("base изменён: nested.a = %v", base["nested"].(map[string]any)["a"])
	}
}
