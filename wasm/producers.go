package wasm

import (
	"github.com/dylibso/modsurfer/wasm/internal/binary"
)

// ProducerValue is a single (name, version) pair from a producers
// custom section field.
type ProducerValue struct {
	Name    string
	Version string
}

// ProducerField is a named field of the producers custom section, per
// tool-conventions: "language", "processed-by", or "sdk".
type ProducerField struct {
	Name   string
	Values []ProducerValue
}

// ParseProducers decodes a producers custom section payload.
// The section is advisory, so any structural problem returns ok=false
// rather than an error.
func ParseProducers(data []byte) ([]ProducerField, bool) {
	r := binary.NewReader(data, 0)
	fieldCount, err := r.ReadU32()
	if err != nil {
		return nil, false
	}
	fields := make([]ProducerField, 0, capHint(fieldCount))
	for i := uint32(0); i < fieldCount; i++ {
		name, err := r.ReadName()
		if err != nil {
			return nil, false
		}
		valueCount, err := r.ReadU32()
		if err != nil {
			return nil, false
		}
		field := ProducerField{Name: name, Values: make([]ProducerValue, 0, capHint(valueCount))}
		for j := uint32(0); j < valueCount; j++ {
			vname, err := r.ReadName()
			if err != nil {
				return nil, false
			}
			version, err := r.ReadName()
			if err != nil {
				return nil, false
			}
			field.Values = append(field.Values, ProducerValue{Name: vname, Version: version})
		}
		fields = append(fields, field)
	}
	return fields, true
}

// ProducersLanguage returns the first value of the language field in a
// producers payload, or ok=false when absent or unparseable.
func ProducersLanguage(data []byte) (string, bool) {
	fields, ok := ParseProducers(data)
	if !ok {
		return "", false
	}
	for _, f := range fields {
		if f.Name == "language" && len(f.Values) > 0 {
			return f.Values[0].Name, true
		}
	}
	return "", false
}
