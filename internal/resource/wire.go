package resource

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// idPattern — формат идентификатора документа: 32 шестнадцатеричных символа.
var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// NewID генерирует идентификатор документа из случайного UUID.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// ParseID проверяет формат идентификатора и приводит его к нижнему регистру.
func ParseID(id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", BadRequest(fmt.Sprintf("некорректный идентификатор %q: ожидается 32 шестнадцатеричных символа", id))
	}
	return strings.ToLower(id), nil
}

// decodeBody разбирает тело мутирующего запроса.
// Неразбираемый JSON и не-объект — 400, массив — 422.
func decodeBody(body []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, BadRequest("некорректный JSON в теле запроса: " + err.Error())
	}
	switch v := raw.(type) {
	case []any:
		return nil, Unprocessable("тело запроса не может быть массивом")
	case map[string]any:
		return v, nil
	default:
		return nil, BadRequest("тело запроса должно быть JSON-объектом")
	}
}

// checkImmutable отклоняет тело, содержащее неизменяемые поля.
func (d Descriptor) checkImmutable(input map[string]any) error {
	var details []schema.FieldError
	for _, f := range d.immutableFields() {
		if _, ok := input[f]; ok {
			details = append(details, schema.FieldError{Field: f, Message: "поле не может быть изменено"})
		}
	}
	if len(details) == 0 {
		return nil
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })
	return Unprocessable("запрос содержит неизменяемые поля", details...)
}

// normalize приводит значение к JSON-представлению (числа — float64,
// массивы — []any, структуры — map[string]any).
func normalize(doc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации документа: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ошибка разбора документа: %w", err)
	}
	return out, nil
}

// contentOf возвращает копию документа без системных полей.
func contentOf(doc store.Document) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case store.FieldID, store.FieldCreatedAt, store.FieldUpdatedAt:
			continue
		}
		out[k] = deepcopy.Copy(v)
	}
	return out
}

// toWire формирует представление документа для клиента: _id → id.
func (d Descriptor) toWire(doc store.Document) (map[string]any, error) {
	out := contentOf(doc)
	out[FieldID] = doc.ID()
	out[store.FieldCreatedAt] = doc.Time(store.FieldCreatedAt)
	out[store.FieldUpdatedAt] = doc.Time(store.FieldUpdatedAt)
	if d.ToWire == nil {
		return out, nil
	}
	return d.ToWire(out)
}

// fromWire применяет FromWire к телу запроса.
func (d Descriptor) fromWire(input map[string]any) (map[string]any, error) {
	if d.FromWire == nil {
		return input, nil
	}
	out, err := d.FromWire(input)
	if err != nil {
		return nil, Unprocessable(err.Error())
	}
	return out, nil
}

// validate проверяет документ по схеме; ошибки схемы — 422 с деталями.
func (d Descriptor) validate(doc map[string]any) error {
	err := d.Schema.Validate(doc)
	if err == nil {
		return nil
	}
	if ve, ok := err.(*schema.ValidationError); ok {
		return Unprocessable("документ не соответствует схеме "+d.Schema.Name(), ve.Fields...)
	}
	return Unprocessable(err.Error())
}

// prepare строит кандидата для create/replace: FromWire, удаление
// неизвестных полей, значения по умолчанию, проверка схемы.
func (d Descriptor) prepare(input map[string]any) (map[string]any, error) {
	doc, err := d.fromWire(input)
	if err != nil {
		return nil, err
	}
	d.Schema.StripUnknown(doc)
	d.Schema.ApplyDefaults(doc)

	doc, err = normalize(doc)
	if err != nil {
		return nil, Unprocessable(err.Error())
	}
	if err := d.validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
