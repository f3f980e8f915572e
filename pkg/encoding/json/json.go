package json

import (
	"github.com/goccy/go-json"
)

// JSONCodec stores records as JSON. Locators are written without HTML
// escaping so query strings stay readable in the index.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.MarshalNoEscape(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) Name() string {
	return "json"
}
