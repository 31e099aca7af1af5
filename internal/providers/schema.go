package providers

// CleanToolSchemas adapts a batch of tool definitions to a provider's
// JSON-schema quirks before they go on the wire.
func CleanToolSchemas(providerName string, defs []ToolDefinition) []ToolDefinition {
	out := make([]ToolDefinition, len(defs))
	for i, d := range defs {
		d.Function.Parameters = CleanSchemaForProvider(providerName, d.Function.Parameters)
		out[i] = d
	}
	return out
}

// CleanSchemaForProvider strips schema keywords a given vendor's tool
// API rejects. Anthropic and OpenAI-compatible backends both accept
// plain JSON Schema objects, so today this only guards against a
// "required" key left as an empty list, which some backends treat as
// a malformed constraint rather than "no required fields".
func CleanSchemaForProvider(providerName string, schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	cleaned := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "required" {
			if req, ok := v.([]string); ok && len(req) == 0 {
				continue
			}
		}
		cleaned[k] = v
	}
	return cleaned
}
