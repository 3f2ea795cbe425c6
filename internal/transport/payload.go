package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"

	"github.com/PentesterFlow/OpenProbe/internal/param"
)

// HeaderProbePrefix marks injected header probes.
const HeaderProbePrefix = "X-OpenProbe-"

// ContentTypeJSON is the default body encoding.
const ContentTypeJSON = "application/json"

// ContentTypeForm is the urlencoded form encoding.
const ContentTypeForm = "application/x-www-form-urlencoded"

// minimalPNG is a valid 1x1 transparent PNG used as the file part in
// upload probes.
var minimalPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0xf8, 0x0f, 0x00, 0x00,
	0x01, 0x01, 0x00, 0x05, 0x18, 0x0d, 0xd2, 0xdb,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44,
	0xae, 0x42, 0x60, 0x82,
}

// HeaderProbeName returns the header used to probe a candidate name.
func HeaderProbeName(name string) string {
	return HeaderProbePrefix + name
}

// BuildBaseline encodes the unmutated request: seed body as-is, no probe
// parameter anywhere.
func BuildBaseline(req *param.Request) (*ProbeRequest, error) {
	pr := &ProbeRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: copyHeaders(req.Headers),
	}
	if !bodyAllowed(req.Method) {
		return pr, nil
	}
	body, contentType, err := encodeBody(req, nil)
	if err != nil {
		return nil, err
	}
	pr.Body = body
	pr.ContentType = contentType
	return pr, nil
}

// BuildProbe encodes one mutation: the candidate name set to value at the
// given location, everything else at baseline values. Path probes are
// resolved statically and never built.
func BuildProbe(req *param.Request, loc param.Location, name string, value any) (*ProbeRequest, error) {
	switch loc {
	case param.LocationQuery:
		return buildQueryProbe(req, name, value)
	case param.LocationBody:
		return buildBodyProbe(req, name, value)
	case param.LocationHeader:
		return buildHeaderProbe(req, name, value)
	case param.LocationPath:
		return nil, fmt.Errorf("path location is resolved statically, no probe request")
	default:
		return nil, fmt.Errorf("no probe encoding for location %q", loc)
	}
}

func buildQueryProbe(req *param.Request, name string, value any) (*ProbeRequest, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set(name, formatValue(value))
	u.RawQuery = q.Encode()

	pr := &ProbeRequest{
		Method:  req.Method,
		URL:     u.String(),
		Headers: copyHeaders(req.Headers),
	}
	if bodyAllowed(req.Method) {
		body, contentType, err := encodeBody(req, nil)
		if err != nil {
			return nil, err
		}
		pr.Body = body
		pr.ContentType = contentType
	}
	return pr, nil
}

func buildBodyProbe(req *param.Request, name string, value any) (*ProbeRequest, error) {
	if !bodyAllowed(req.Method) {
		return nil, fmt.Errorf("method %s carries no body", req.Method)
	}
	body, contentType, err := encodeBody(req, map[string]any{name: value})
	if err != nil {
		return nil, err
	}
	return &ProbeRequest{
		Method:      req.Method,
		URL:         req.URL,
		Headers:     copyHeaders(req.Headers),
		Body:        body,
		ContentType: contentType,
	}, nil
}

func buildHeaderProbe(req *param.Request, name string, value any) (*ProbeRequest, error) {
	headers := copyHeaders(req.Headers)
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	headers[HeaderProbeName(name)] = formatValue(value)

	pr := &ProbeRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: headers,
	}
	if bodyAllowed(req.Method) {
		body, contentType, err := encodeBody(req, nil)
		if err != nil {
			return nil, err
		}
		pr.Body = body
		pr.ContentType = contentType
	}
	return pr, nil
}

// BuildUploadProbe encodes a multipart request with the candidate as a file
// field carrying a small valid PNG, plus the seed body as form fields.
func BuildUploadProbe(req *param.Request, fileField string) (*ProbeRequest, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, k := range sortedKeys(req.SeedBody) {
		if err := w.WriteField(k, formatValue(req.SeedBody[k])); err != nil {
			return nil, fmt.Errorf("write form field %q: %w", k, err)
		}
	}

	part, err := w.CreateFormFile(fileField, "probe.png")
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(minimalPNG); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &ProbeRequest{
		Method:      req.Method,
		URL:         req.URL,
		Headers:     copyHeaders(req.Headers),
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
	}, nil
}

// encodeBody merges extra keys over the seed body and encodes per the
// request content type. JSON when no override is set.
func encodeBody(req *param.Request, extra map[string]any) ([]byte, string, error) {
	contentType := req.ContentType
	switch {
	case strings.Contains(contentType, "x-www-form-urlencoded"):
		values := url.Values{}
		for k, v := range req.SeedBody {
			values.Set(k, formatValue(v))
		}
		for k, v := range extra {
			values.Set(k, formatValue(v))
		}
		return []byte(values.Encode()), ContentTypeForm, nil

	case strings.Contains(contentType, "multipart"):
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		merged := mergeBody(req.SeedBody, extra)
		for _, k := range sortedKeys(merged) {
			if err := w.WriteField(k, formatValue(merged[k])); err != nil {
				return nil, "", fmt.Errorf("write form field %q: %w", k, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("close multipart writer: %w", err)
		}
		return buf.Bytes(), w.FormDataContentType(), nil

	default:
		merged := mergeBody(req.SeedBody, extra)
		if len(merged) == 0 {
			if extra == nil {
				return nil, "", nil
			}
			merged = map[string]any{}
		}
		body, err := json.Marshal(merged)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		if contentType == "" {
			contentType = ContentTypeJSON
		}
		return body, contentType, nil
	}
}

func mergeBody(seed, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(seed)+len(extra))
	for k, v := range seed {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// formatValue renders a probe value for string-typed carriers (query,
// header, form fields).
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64, float32, int, int64, int32:
		return fmt.Sprintf("%v", val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}

// bodyAllowed reports whether probes on this method carry a body.
func bodyAllowed(method string) bool {
	return method != "GET"
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
