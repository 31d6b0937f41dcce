package util

import (
	"bytes"
	"encoding/json"
)

// DecodeJSONNumbers decodes b into v keeping numbers as json.Number, so
// values read back from storage compare equal to what was written.
func DecodeJSONNumbers(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}
