package voice

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nadzzz/ttsgraph/internal/apperr"
)

// op prefixes every payload error. Error texts below are shown to users
// verbatim and keep the host's sentence punctuation.
const op = "invalid voices payload"

// Record is one voice entry as submitted. Unset fields decode as empty.
type Record struct {
	Type             Text `json:"type" yaml:"type"`
	Name             Text `json:"name" yaml:"name"`
	ReferenceText    Text `json:"referenceText" yaml:"referenceText"`
	StyleInstruction Text `json:"styleInstruction" yaml:"styleInstruction"`
	Speaker          Text `json:"speaker" yaml:"speaker"`
	AudioBase64      Text `json:"audioBase64" yaml:"audioBase64"`
}

// Text is a string field that also accepts scalar numbers and booleans,
// rendering them as text. JSON null decodes as empty.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(data)
	}
	return nil
}

// IsEmptyPayload reports whether data carries no voices at all: blank, or
// an empty JSON array. Such payloads mean the feature is unused rather than
// misconfigured.
func IsEmptyPayload(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]"))
}

// Parse decodes and validates a JSON voices payload. Keys match
// case-insensitively, first match wins, and entries that are not objects
// are skipped.
func Parse(data []byte) ([]Spec, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, apperr.New(apperr.KindPayload, op, "voices payload must be a JSON array.")
		}
		return nil, apperr.Newf(apperr.KindPayload, op, "%v", err)
	}

	records := make([]Record, 0, len(entries))
	for _, raw := range entries {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		rec, err := recordFromObject(raw)
		if err != nil {
			return nil, apperr.Newf(apperr.KindPayload, op, "%v", err)
		}
		records = append(records, rec)
	}
	return Validate(records)
}

// ParseYAML decodes and validates a YAML voices document, with the same
// rules as Parse.
func ParseYAML(data []byte) ([]Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Newf(apperr.KindPayload, op, "%v", err)
	}
	if len(doc.Content) == 0 {
		return Validate(nil)
	}

	list := doc.Content[0]
	if list.Kind != yaml.SequenceNode {
		return nil, apperr.New(apperr.KindPayload, op, "voices payload must be a list.")
	}

	records := make([]Record, 0, len(list.Content))
	for _, item := range list.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		records = append(records, recordFromMapping(item))
	}
	return Validate(records)
}

// recordFields maps lower-cased payload keys to the fields of rec.
func recordFields(rec *Record) map[string]*Text {
	return map[string]*Text{
		"type":             &rec.Type,
		"name":             &rec.Name,
		"referencetext":    &rec.ReferenceText,
		"styleinstruction": &rec.StyleInstruction,
		"speaker":          &rec.Speaker,
		"audiobase64":      &rec.AudioBase64,
	}
}

// recordFromObject reads a JSON object into a Record. Keys match
// case-insensitively and the first matching key wins, so
// {"Name":"Ann","name":""} names the voice Ann.
func recordFromObject(raw []byte) (Record, error) {
	var rec Record
	fields := recordFields(&rec)
	seen := make(map[string]bool, len(fields))

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return Record{}, err
		}

		key, _ := tok.(string)
		name := strings.ToLower(key)
		dst, ok := fields[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		if err := dst.UnmarshalJSON(val); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// recordFromMapping reads a YAML mapping into a Record with the same key
// rules as recordFromObject.
func recordFromMapping(node *yaml.Node) Record {
	var rec Record
	fields := recordFields(&rec)
	seen := make(map[string]bool, len(fields))

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		name := strings.ToLower(key.Value)
		dst, ok := fields[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		if val.Kind != yaml.ScalarNode || val.Tag == "!!null" {
			continue
		}
		*dst = Text(val.Value)
	}
	return rec
}

// Validate turns records into specs, failing on the first invalid entry.
func Validate(records []Record) ([]Spec, error) {
	specs := make([]Spec, 0, len(records))
	for _, rec := range records {
		spec, err := validateRecord(rec)
		if err != nil {
			return nil, apperr.Newf(apperr.KindPayload, op, "%v", err)
		}
		specs = append(specs, spec)
	}

	if len(specs) < 1 {
		return nil, apperr.New(apperr.KindPayload, op, "at least one voice is required")
	}
	if len(specs) > MaxVoices {
		return nil, apperr.New(apperr.KindPayload, op, "RoleBank supports at most "+strconv.Itoa(MaxVoices)+" voices")
	}
	return specs, nil
}

func validateRecord(rec Record) (Spec, error) {
	rawType := string(rec.Type)
	if strings.TrimSpace(rawType) == "" {
		return Spec{}, errors.New("voice entry is missing type.") //nolint:staticcheck // host wording
	}

	kind, err := ParseKind(rawType)
	if err != nil {
		return Spec{}, err
	}

	name := strings.TrimSpace(string(rec.Name))
	if name == "" {
		return Spec{}, errors.New("voice entry is missing a name.") //nolint:staticcheck // host wording
	}

	return Spec{
		TypeRaw:          rawType,
		Kind:             kind,
		Name:             name,
		ReferenceText:    string(rec.ReferenceText),
		StyleInstruction: string(rec.StyleInstruction),
		Speaker:          string(rec.Speaker),
		AudioBase64:      string(rec.AudioBase64),
	}, nil
}

// Records turns specs back into payload records, keeping the submitted
// type strings.
func Records(specs []Spec) []Record {
	records := make([]Record, len(specs))
	for i, s := range specs {
		records[i] = Record{
			Type:             Text(s.TypeRaw),
			Name:             Text(s.Name),
			ReferenceText:    Text(s.ReferenceText),
			StyleInstruction: Text(s.StyleInstruction),
			Speaker:          Text(s.Speaker),
			AudioBase64:      Text(s.AudioBase64),
		}
	}
	return records
}
