// Пакет schema — реестр схем записей каталога.
//
// Схемы описаны во встроенном OpenAPI-документе (openapi.yaml)
// и проверяются через kin-openapi. Пакет также применяет значения
// по умолчанию и отбрасывает неизвестные поля верхнего уровня.
package schema

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mohae/deepcopy"
)

//go:embed openapi.yaml
var specYAML []byte

// FieldError — ошибка проверки одного поля.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError — документ не соответствует схеме.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "документ не соответствует схеме: " + strings.Join(parts, "; ")
}

// Registry — набор схем из OpenAPI-документа.
type Registry struct {
	schemas map[string]*Schema
}

// Load разбирает встроенный OpenAPI-документ и проверяет его корректность.
func Load() (*Registry, error) {
	return LoadFromData(specYAML)
}

// LoadFromData разбирает OpenAPI-документ из data.
func LoadFromData(data []byte) (*Registry, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки OpenAPI-документа: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("некорректный OpenAPI-документ: %w", err)
	}

	r := &Registry{schemas: make(map[string]*Schema, len(doc.Components.Schemas))}
	for name, ref := range doc.Components.Schemas {
		if ref == nil || ref.Value == nil {
			continue
		}
		r.schemas[name] = &Schema{name: name, value: ref.Value}
	}
	return r, nil
}

// Schema возвращает схему по имени компонента.
func (r *Registry) Schema(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("схема %q не найдена", name)
	}
	return s, nil
}

// Schema — схема одного типа записи.
type Schema struct {
	name  string
	value *openapi3.Schema
}

// Name возвращает имя компонента схемы.
func (s *Schema) Name() string {
	return s.name
}

// HasProperty сообщает, описано ли поле верхнего уровня в схеме.
func (s *Schema) HasProperty(name string) bool {
	_, ok := s.value.Properties[name]
	return ok
}

// Properties возвращает отсортированные имена полей верхнего уровня.
func (s *Schema) Properties() []string {
	names := make([]string, 0, len(s.value.Properties))
	for name := range s.value.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StripUnknown удаляет из doc поля верхнего уровня, не описанные в схеме.
// Возвращает имена удалённых полей.
func (s *Schema) StripUnknown(doc map[string]any) []string {
	var dropped []string
	for key := range doc {
		if !s.HasProperty(key) {
			dropped = append(dropped, key)
			delete(doc, key)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// ApplyDefaults заполняет отсутствующие поля значениями по умолчанию.
// Вложенные объекты обрабатываются рекурсивно.
func (s *Schema) ApplyDefaults(doc map[string]any) {
	applyDefaults(s.value, doc)
}

func applyDefaults(schema *openapi3.Schema, doc map[string]any) {
	for name, ref := range schema.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		prop := ref.Value
		if _, present := doc[name]; !present && prop.Default != nil {
			doc[name] = deepcopy.Copy(prop.Default)
		}
		if nested, ok := doc[name].(map[string]any); ok && len(prop.Properties) > 0 {
			applyDefaults(prop, nested)
		}
	}
}

// Validate проверяет doc по схеме. doc должен быть в JSON-представлении
// (числа — float64, массивы — []any). Возвращает *ValidationError
// со всеми найденными нарушениями.
func (s *Schema) Validate(doc map[string]any) error {
	err := s.value.VisitJSON(doc, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	var fields []FieldError
	collectErrors(err, &fields)
	return &ValidationError{Fields: fields}
}

// collectErrors раскладывает ошибки kin-openapi в плоский список по полям.
func collectErrors(err error, out *[]FieldError) {
	if multi, ok := err.(openapi3.MultiError); ok {
		for _, e := range multi {
			collectErrors(e, out)
		}
		return
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		*out = append(*out, FieldError{
			Field:   strings.Join(schemaErr.JSONPointer(), "."),
			Message: schemaErr.Reason,
		})
		return
	}
	*out = append(*out, FieldError{Message: err.Error()})
}
