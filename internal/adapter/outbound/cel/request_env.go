package cel

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
)

// NewRequestEnvironment creates the CEL environment for request conditions.
//
// Variables:
//   - method: upper-cased HTTP method
//   - url: full request URL
//   - host: URL host (with port when present)
//   - path: escaped URL path
//   - query: first non-blank value per query parameter
//   - headers: request headers keyed by canonical name
//   - body: request body as a string
//   - body_size: body length in bytes
//
// Functions: glob(pattern, s), header(headers, name).
func NewRequestEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("method", cel.StringType),
		cel.Variable("url", cel.StringType),
		cel.Variable("host", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("query", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("body", cel.StringType),
		cel.Variable("body_size", cel.IntType),

		// glob: shell-style pattern match, e.g. glob("/v1/*/send", path)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, s ref.Val) ref.Val {
					p, ok1 := pattern.Value().(string)
					v, ok2 := s.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					matched, _ := filepath.Match(p, v)
					return types.Bool(matched)
				}),
			),
		),

		// header: case-insensitive header lookup, "" when absent.
		// Usage: header(headers, "content-type")
		cel.Function("header",
			cel.Overload("header_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.StringType), cel.StringType},
				cel.StringType,
				cel.BinaryBinding(func(mapVal, nameVal ref.Val) ref.Val {
					name, ok := nameVal.Value().(string)
					if !ok {
						return types.String("")
					}
					key := http.CanonicalHeaderKey(name)
					switch m := mapVal.Value().(type) {
					case map[string]string:
						return types.String(m[key])
					case map[ref.Val]ref.Val:
						if v, found := m[types.String(key)]; found {
							if s, ok := v.Value().(string); ok {
								return types.String(s)
							}
						}
					}
					return types.String("")
				}),
			),
		),
	)
}

// BuildRequestActivation creates the activation for one request.
func BuildRequestActivation(d envelope.Descriptor, t policy.Target) map[string]any {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	query := t.Query
	if query == nil {
		query = map[string]string{}
	}

	var host string
	if u, err := url.Parse(d.URL); err == nil {
		host = u.Host
	}

	return map[string]any{
		"method":    strings.ToUpper(d.Method),
		"url":       d.URL,
		"host":      host,
		"path":      t.Path,
		"query":     query,
		"headers":   headers,
		"body":      strings.ToValidUTF8(string(d.Body), "�"),
		"body_size": int64(len(d.Body)),
	}
}
