package specgen

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// dig walks nested map[string]any values, failing the test on a missing
// key or a non-map intermediate.
func dig(t *testing.T, v any, keys ...string) any {
	t.Helper()
	for _, key := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			t.Fatalf("dig %q: value is %T, not a map", key, v)
		}
		v, ok = m[key]
		if !ok {
			t.Fatalf("dig: missing key %q", key)
		}
	}
	return v
}

func sampleResult() *param.DiscoveryResult {
	return &param.DiscoveryResult{
		URL:    "https://api.example.com/v1/users",
		Method: "POST",
		Parameters: []param.Parameter{
			{Name: "q", Location: param.LocationQuery, Type: param.TypeString, Confidence: 0.5, Evidence: make([]param.Evidence, 2)},
			{Name: "id", Location: param.LocationPath, Type: param.TypeNumber, Confidence: 0.9, Evidence: make([]param.Evidence, 1)},
			{Name: "trace", Location: param.LocationHeader, Type: param.TypeUnknown, Confidence: 0.3},
			{Name: "username", Location: param.LocationBody, Type: param.TypeString, Required: true, Confidence: 1.0, Evidence: make([]param.Evidence, 6)},
			{Name: "tags", Location: param.LocationBody, Type: param.TypeObject, Nullable: true, Confidence: 0.6, Evidence: make([]param.Evidence, 3)},
			{Name: "mystery", Location: param.LocationUnknown, Type: param.TypeUnknown, Confidence: 0.2},
		},
		Meta: param.Meta{
			TotalParameters:  6,
			PartialFailures:  1,
			ExecutionTimeMs:  120,
			DiscoveryVersion: param.DiscoveryVersion,
			Classification:   &param.Classification{Type: param.EndpointCRUD, Confidence: 1.0},
			FrameworkSignal:  &param.FrameworkSignal{Framework: param.FrameworkFastAPI, Confidence: 1.0},
		},
	}
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestGenerate_DocumentShape(t *testing.T) {
	doc := Generate(sampleResult())

	if got := doc["openapi"]; got != "3.0.0" {
		t.Errorf("openapi = %v, want 3.0.0", got)
	}
	servers, ok := doc["servers"].([]any)
	if !ok || len(servers) != 1 {
		t.Fatalf("servers = %v, want one entry", doc["servers"])
	}
	if got := dig(t, servers[0], "url"); got != "https://api.example.com" {
		t.Errorf("server url = %v, want https://api.example.com", got)
	}
	if got := dig(t, doc, "paths", "/v1/users", "post", "summary"); got != "Inferred POST endpoint" {
		t.Errorf("summary = %v, want Inferred POST endpoint", got)
	}
	responses := dig(t, doc, "paths", "/v1/users", "post", "responses").(map[string]any)
	for _, status := range []string{"200", "422"} {
		if _, ok := responses[status]; !ok {
			t.Errorf("responses missing %s", status)
		}
	}
}

func TestGenerate_ParameterGrouping(t *testing.T) {
	doc := Generate(sampleResult())

	params, ok := dig(t, doc, "paths", "/v1/users", "post", "parameters").([]any)
	if !ok {
		t.Fatalf("parameters is not a list")
	}
	if len(params) != 4 {
		t.Fatalf("len(parameters) = %d, want 4 (query, path, header, unknown)", len(params))
	}

	q := params[0].(map[string]any)
	if q["name"] != "q" || q["in"] != "query" {
		t.Errorf("parameters[0] = %v, want q in query", q)
	}

	id := params[1].(map[string]any)
	if id["in"] != "path" {
		t.Errorf("parameters[1].in = %v, want path", id["in"])
	}
	if id["required"] != true {
		t.Errorf("path parameter not marked required")
	}

	trace := params[2].(map[string]any)
	if trace["in"] != "header" {
		t.Errorf("parameters[2].in = %v, want header", trace["in"])
	}
	if got := dig(t, trace, "schema", "type"); got != "string" {
		t.Errorf("unknown type rendered as %v, want string", got)
	}

	mystery := params[3].(map[string]any)
	if _, ok := mystery["in"]; ok {
		t.Errorf("unresolved parameter carries in = %v, want none", mystery["in"])
	}
	if mystery["x-location"] != "unknown" {
		t.Errorf("x-location = %v, want unknown", mystery["x-location"])
	}
}

func TestGenerate_RequestBodySchema(t *testing.T) {
	doc := Generate(sampleResult())

	schema := dig(t, doc, "paths", "/v1/users", "post", "requestBody", "content", "application/json", "schema")
	username := dig(t, schema, "properties", "username").(map[string]any)
	if username["type"] != "string" {
		t.Errorf("username.type = %v, want string", username["type"])
	}
	if username["x-confidence"] != 1.0 {
		t.Errorf("username.x-confidence = %v, want 1.0", username["x-confidence"])
	}
	if username["x-evidence-count"] != 6 {
		t.Errorf("username.x-evidence-count = %v, want 6", username["x-evidence-count"])
	}

	tags := dig(t, schema, "properties", "tags").(map[string]any)
	if tags["type"] != "object" || tags["nullable"] != true {
		t.Errorf("tags schema = %v, want nullable object", tags)
	}

	required, ok := dig(t, schema, "required").([]string)
	if !ok || !reflect.DeepEqual(required, []string{"username"}) {
		t.Errorf("required = %v, want [username]", dig(t, schema, "required"))
	}
}

func TestGenerate_UploadMultipart(t *testing.T) {
	result := &param.DiscoveryResult{
		URL:    "https://api.example.com/upload",
		Method: "POST",
		Parameters: []param.Parameter{
			{Name: "avatar", Location: param.LocationBody, Type: param.TypeFile, Required: true, Confidence: 0.8, Evidence: make([]param.Evidence, 4)},
			{Name: "title", Location: param.LocationBody, Type: param.TypeString, Confidence: 0.4},
		},
		Meta: param.Meta{
			Classification: &param.Classification{Type: param.EndpointUpload, Confidence: 1.0},
		},
	}

	doc := Generate(result)

	schema := dig(t, doc, "paths", "/upload", "post", "requestBody", "content", "multipart/form-data", "schema")
	avatar := dig(t, schema, "properties", "avatar").(map[string]any)
	if avatar["type"] != "string" || avatar["format"] != "binary" {
		t.Errorf("avatar schema = %v, want binary string", avatar)
	}
	title := dig(t, schema, "properties", "title").(map[string]any)
	if title["type"] != "string" {
		t.Errorf("title.type = %v, want string", title["type"])
	}
	required, _ := dig(t, schema, "required").([]string)
	if !reflect.DeepEqual(required, []string{"avatar"}) {
		t.Errorf("required = %v, want [avatar]", required)
	}
}

func TestGenerate_MetaEcho(t *testing.T) {
	doc := Generate(sampleResult())

	meta := dig(t, doc, "info", "x-discovery-meta").(map[string]any)
	if meta["discovery_version"] != param.DiscoveryVersion {
		t.Errorf("discovery_version = %v, want %v", meta["discovery_version"], param.DiscoveryVersion)
	}
	if meta["total_parameters"] != 6 {
		t.Errorf("total_parameters = %v, want 6", meta["total_parameters"])
	}
	if meta["endpoint_type"] != "crud" {
		t.Errorf("endpoint_type = %v, want crud", meta["endpoint_type"])
	}
	if meta["framework"] != param.FrameworkFastAPI {
		t.Errorf("framework = %v, want fastapi", meta["framework"])
	}
}

func TestGenerate_UnknownFrameworkOmitted(t *testing.T) {
	result := sampleResult()
	result.Meta.FrameworkSignal = &param.FrameworkSignal{Framework: param.FrameworkUnknown}

	meta := dig(t, Generate(result), "info", "x-discovery-meta").(map[string]any)
	if _, ok := meta["framework"]; ok {
		t.Errorf("framework = %v, want omitted for unknown", meta["framework"])
	}
}

func TestGenerate_RootPathFallback(t *testing.T) {
	result := &param.DiscoveryResult{URL: "https://example.com", Method: "GET"}

	doc := Generate(result)
	if got := dig(t, doc, "paths", "/", "get", "summary"); got != "Inferred GET endpoint" {
		t.Errorf("root path operation summary = %v", got)
	}
}

func TestGenerate_DeterministicJSON(t *testing.T) {
	first, err := json.Marshal(Generate(sampleResult()))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	second, err := json.Marshal(Generate(sampleResult()))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("generated documents differ across identical results")
	}
}
