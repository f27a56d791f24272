// Пакет marc — библиографическая запись и её строковое представление
// (line-oriented interchange format).
//
// Формат:
//
//	<leader, 24 символа>
//	001 ocm12345
//	245 10$aНазвание$cАвтор
//
// Управляющие поля (тег < 010) записываются как "TAG value",
// поля данных — как "TAG I1I2$aзначение$bзначение".
package marc

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// LeaderLength — фиксированная длина лидера записи.
const LeaderLength = 24

// Delimiter — разделитель подполей.
const Delimiter = '$'

var (
	// ErrDelimiter — значение содержит разделитель или перевод строки
	// и не может быть закодировано однозначно.
	ErrDelimiter = errors.New("значение содержит недопустимый разделитель")
	// ErrInvalidRecord — запись или текст не соответствуют формату.
	ErrInvalidRecord = errors.New("некорректная библиографическая запись")
)

// Subfield — подполе поля данных.
type Subfield struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// Field — поле записи. Для управляющих полей заполнено Value,
// для полей данных — индикаторы и подполя.
type Field struct {
	Tag        string     `json:"tag"`
	Value      string     `json:"value,omitempty"`
	Indicator1 string     `json:"indicator1,omitempty"`
	Indicator2 string     `json:"indicator2,omitempty"`
	Subfields  []Subfield `json:"subfields,omitempty"`
}

// Record — структурированная библиографическая запись.
type Record struct {
	Leader string  `json:"leader"`
	Fields []Field `json:"fields"`
}

// IsControl сообщает, является ли поле управляющим (тег 001-009).
func (f Field) IsControl() bool {
	return f.Tag < "010"
}

// validTag проверяет, что тег состоит из трёх цифр.
func validTag(tag string) bool {
	if len(tag) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if tag[i] < '0' || tag[i] > '9' {
			return false
		}
	}
	return true
}

// indicator возвращает символ индикатора; пустой индикатор кодируется пробелом.
// Явный пробел не допускается: он неотличим от пустого индикатора.
func indicator(s string) (byte, error) {
	switch len(s) {
	case 0:
		return ' ', nil
	case 1:
		if s[0] == ' ' {
			return 0, fmt.Errorf("%w: пустой индикатор задаётся пустой строкой", ErrInvalidRecord)
		}
		if s[0] == Delimiter || s[0] == '\n' || s[0] == '\r' {
			return 0, fmt.Errorf("%w: индикатор %q", ErrDelimiter, s)
		}
		return s[0], nil
	default:
		return 0, fmt.Errorf("%w: индикатор %q длиннее одного символа", ErrInvalidRecord, s)
	}
}

// Encode кодирует запись в строковый формат.
// Значения с разделителем '$' или переводом строки дают ErrDelimiter.
func Encode(r Record) (string, error) {
	if len(r.Leader) != LeaderLength {
		return "", fmt.Errorf("%w: длина лидера %d, ожидается %d", ErrInvalidRecord, len(r.Leader), LeaderLength)
	}
	if strings.ContainsAny(r.Leader, "\r\n") {
		return "", fmt.Errorf("%w: лидер", ErrDelimiter)
	}

	var b strings.Builder
	b.WriteString(r.Leader)
	b.WriteByte('\n')

	for i, f := range r.Fields {
		if !validTag(f.Tag) {
			return "", fmt.Errorf("%w: поле %d: тег %q", ErrInvalidRecord, i, f.Tag)
		}
		b.WriteString(f.Tag)
		b.WriteByte(' ')

		if f.IsControl() {
			if strings.ContainsAny(f.Value, "\r\n") {
				return "", fmt.Errorf("%w: поле %s", ErrDelimiter, f.Tag)
			}
			b.WriteString(f.Value)
			b.WriteByte('\n')
			continue
		}

		ind1, err := indicator(f.Indicator1)
		if err != nil {
			return "", fmt.Errorf("поле %s: %w", f.Tag, err)
		}
		ind2, err := indicator(f.Indicator2)
		if err != nil {
			return "", fmt.Errorf("поле %s: %w", f.Tag, err)
		}
		b.WriteByte(ind1)
		b.WriteByte(ind2)

		for _, sf := range f.Subfields {
			if len(sf.Code) != 1 {
				return "", fmt.Errorf("%w: поле %s: код подполя %q", ErrInvalidRecord, f.Tag, sf.Code)
			}
			if strings.ContainsAny(sf.Code+sf.Value, "$\r\n") {
				return "", fmt.Errorf("%w: поле %s, подполе %s", ErrDelimiter, f.Tag, sf.Code)
			}
			b.WriteByte(Delimiter)
			b.WriteString(sf.Code)
			b.WriteString(sf.Value)
		}
		b.WriteByte('\n')
	}

	return b.String(), nil
}

// Decode разбирает строковый формат в структурированную запись.
// Допускаются окончания строк \r\n и завершающий перевод строки.
func Decode(text string) (Record, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return Record{}, fmt.Errorf("%w: пустой текст", ErrInvalidRecord)
	}

	lines := strings.Split(text, "\n")
	rec := Record{Leader: lines[0]}
	if len(rec.Leader) != LeaderLength {
		return Record{}, fmt.Errorf("%w: длина лидера %d, ожидается %d", ErrInvalidRecord, len(rec.Leader), LeaderLength)
	}

	for n, line := range lines[1:] {
		lineNo := n + 2
		if len(line) < 4 || line[3] != ' ' || !validTag(line[:3]) {
			return Record{}, fmt.Errorf("%w: строка %d: ожидается \"TAG ...\"", ErrInvalidRecord, lineNo)
		}

		f := Field{Tag: line[:3]}
		body := line[4:]

		if f.IsControl() {
			f.Value = body
			rec.Fields = append(rec.Fields, f)
			continue
		}

		if len(body) < 2 {
			return Record{}, fmt.Errorf("%w: строка %d: нет индикаторов", ErrInvalidRecord, lineNo)
		}
		f.Indicator1 = decodeIndicator(body[0])
		f.Indicator2 = decodeIndicator(body[1])

		rest := body[2:]
		if rest != "" {
			if rest[0] != Delimiter {
				return Record{}, fmt.Errorf("%w: строка %d: подполе должно начинаться с '$'", ErrInvalidRecord, lineNo)
			}
			for _, part := range strings.Split(rest[1:], string(Delimiter)) {
				if part == "" {
					return Record{}, fmt.Errorf("%w: строка %d: пустой код подполя", ErrInvalidRecord, lineNo)
				}
				if part[0] >= utf8.RuneSelf {
					return Record{}, fmt.Errorf("%w: строка %d: код подполя должен быть ASCII-символом", ErrInvalidRecord, lineNo)
				}
				f.Subfields = append(f.Subfields, Subfield{Code: part[:1], Value: part[1:]})
			}
		}
		rec.Fields = append(rec.Fields, f)
	}

	return rec, nil
}

func decodeIndicator(c byte) string {
	if c == ' ' {
		return ""
	}
	return string(c)
}
