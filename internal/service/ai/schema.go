package ai

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/zhouzirui/convosense/backend/internal/model/chat"
)

var (
	sentimentSchema   = generateSchema[sentimentOutput]()
	translationSchema = generateSchema[chat.TranslationDetail]()
)

// generateSchema reflects T into a strict structured-output schema:
// inline definitions, every property required, no additional properties.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	raw, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	makeStrict(out)
	return out
}

func makeStrict(schema map[string]any) {
	if items, ok := schema["items"].(map[string]any); ok {
		makeStrict(items)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}
	schema["additionalProperties"] = false
	required := make([]string, 0, len(props))
	for name, prop := range props {
		required = append(required, name)
		if child, ok := prop.(map[string]any); ok {
			makeStrict(child)
		}
	}
	schema["required"] = required
}

func schemaText(schema map[string]any) string {
	raw, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(raw)
}
