// Package specgen renders a discovery result as a synthetic OpenAPI 3.0
// document. The document is advisory: inferred parameters carry
// x-confidence and x-evidence-count extensions so consumers can judge
// how much to trust each entry.
package specgen

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// Generate builds the OpenAPI document for one discovered endpoint.
// Output is a plain map so callers choose the encoding; map marshaling
// sorts keys, which keeps the document deterministic for a fixed result.
func Generate(result *param.DiscoveryResult) map[string]any {
	method := strings.ToLower(result.Method)
	path := "/"
	servers := []any{}
	if u, err := url.Parse(result.URL); err == nil {
		if u.Path != "" {
			path = u.Path
		}
		servers = append(servers, map[string]any{
			"url":         u.Scheme + "://" + u.Host,
			"description": "Inferred API server",
		})
	}

	return map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":            "Inferred API Spec",
			"version":          "0.1.0",
			"description":      "Generated from observed endpoint behavior",
			"x-discovery-meta": discoveryMeta(result.Meta),
		},
		"servers": servers,
		"paths": map[string]any{
			path: map[string]any{
				method: operation(result),
			},
		},
	}
}

// discoveryMeta echoes run statistics into the document header.
func discoveryMeta(meta param.Meta) map[string]any {
	m := map[string]any{
		"discovery_version": meta.DiscoveryVersion,
		"total_parameters":  meta.TotalParameters,
		"partial_failures":  meta.PartialFailures,
		"execution_time_ms": meta.ExecutionTimeMs,
	}
	if meta.Classification != nil {
		m["endpoint_type"] = string(meta.Classification.Type)
	}
	if meta.FrameworkSignal != nil && meta.FrameworkSignal.Framework != param.FrameworkUnknown {
		m["framework"] = meta.FrameworkSignal.Framework
	}
	return m
}

// operation builds the single path operation: query, path, and header
// parameters in the parameters list, body parameters as a request body,
// and canned success and validation-error responses.
func operation(result *param.DiscoveryResult) map[string]any {
	listed := []any{}
	var body []param.Parameter
	upload := result.Meta.Classification != nil && result.Meta.Classification.Type == param.EndpointUpload

	for _, p := range result.Parameters {
		switch p.Location {
		case param.LocationQuery, param.LocationPath, param.LocationHeader:
			listed = append(listed, parameterObject(p))
		case param.LocationBody:
			body = append(body, p)
		default:
			obj := parameterObject(p)
			delete(obj, "in")
			obj["x-location"] = string(param.LocationUnknown)
			listed = append(listed, obj)
		}
	}

	op := map[string]any{
		"summary":     fmt.Sprintf("Inferred %s endpoint", strings.ToUpper(result.Method)),
		"description": "Endpoint discovered via automated parameter probing",
		"parameters":  listed,
		"responses": map[string]any{
			"200": cannedResponse("Success (inferred)"),
			"422": cannedResponse("Validation error (inferred)"),
		},
	}
	if len(body) > 0 {
		op["requestBody"] = requestBody(body, upload)
	}
	return op
}

func cannedResponse(description string) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
	}
}

// parameterObject renders one query, path, or header parameter. Path
// parameters are always required in OpenAPI regardless of what the
// evidence said.
func parameterObject(p param.Parameter) map[string]any {
	obj := map[string]any{
		"name":             p.Name,
		"in":               string(p.Location),
		"schema":           propertySchema(p),
		"x-confidence":     p.Confidence,
		"x-evidence-count": len(p.Evidence),
	}
	if p.Required || p.Location == param.LocationPath {
		obj["required"] = true
	}
	return obj
}

// requestBody renders body parameters: a multipart schema with binary
// file fields for upload endpoints, a JSON object schema otherwise.
func requestBody(body []param.Parameter, upload bool) map[string]any {
	properties := map[string]any{}
	var required []string
	hasFile := false

	for _, p := range body {
		if p.Type == param.TypeFile {
			hasFile = true
			properties[p.Name] = map[string]any{
				"type":             "string",
				"format":           "binary",
				"x-confidence":     p.Confidence,
				"x-evidence-count": len(p.Evidence),
			}
		} else {
			schema := propertySchema(p)
			schema["x-confidence"] = p.Confidence
			schema["x-evidence-count"] = len(p.Evidence)
			properties[p.Name] = schema
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	contentType := "application/json"
	if upload && hasFile {
		contentType = "multipart/form-data"
	}
	return map[string]any{
		"content": map[string]any{
			contentType: map[string]any{"schema": schema},
		},
	}
}

// propertySchema maps an inferred parameter onto a JSON schema fragment.
// Unknown and file types fall back to string so the document stays valid.
func propertySchema(p param.Parameter) map[string]any {
	schema := map[string]any{"type": schemaType(p.Type)}
	if p.Nullable {
		schema["nullable"] = true
	}
	return schema
}

func schemaType(t param.ValueType) string {
	switch t {
	case param.TypeString, param.TypeNumber, param.TypeBoolean, param.TypeObject, param.TypeArray:
		return string(t)
	}
	return string(param.TypeString)
}
