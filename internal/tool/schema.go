package tool

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/toolrun/internal/toolerr"
)

const (
	httpMethods = `["", "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"]`
	restOps     = `["GET", "POST", "PUT", "PATCH", "DELETE"]`
	authSchema  = `{
		"type": "object",
		"properties": {
			"type": {"enum": ["bearer", "basic", "api_key"]},
			"token": {"type": "string"},
			"username": {"type": "string"},
			"password": {"type": "string"},
			"header": {"type": "string"}
		},
		"required": ["type"]
	}`
)

// paramSchemas holds the JSON schema each kind's parameters must satisfy.
var paramSchemas = map[Kind]string{
	KindFileRead:      requireStrings("path"),
	KindFileWrite:     requireStrings("path", "content"),
	KindFileSearch:    requireStrings("pattern"),
	KindContentSearch: requireStrings("pattern"),
	KindListDirectory: `{"type": "object", "properties": {"path": {"type": "string"}}}`,
	KindExecCommand: `{
		"type": "object",
		"properties": {
			"command": {"type": "string", "minLength": 1, "maxLength": 1000},
			"dir": {"type": "string"},
			"timeout_seconds": {"type": "integer", "minimum": 0}
		},
		"required": ["command"]
	}`,
	KindGitStatus: `{"type": "object"}`,
	KindWebSearch: requireStrings("query"),
	KindWebScrape: `{
		"type": "object",
		"properties": {"url": {"type": "string", "format": "uri", "pattern": "^https?://"}},
		"required": ["url"]
	}`,
	KindHTTPRequest: `{
		"type": "object",
		"properties": {
			"method": {"enum": ` + httpMethods + `},
			"url": {"type": "string", "format": "uri", "pattern": "^https?://"},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"body": {"type": "string"},
			"timeout_seconds": {"type": "integer", "minimum": 0, "maximum": 600}
		},
		"required": ["url"]
	}`,
	KindRESTCall: `{
		"type": "object",
		"properties": {
			"endpoint": {"type": "string", "format": "uri", "pattern": "^https?://"},
			"operation": {"enum": ` + restOps + `},
			"data": {"type": ["object", "array"]},
			"auth": ` + authSchema + `
		},
		"required": ["endpoint", "operation"]
	}`,
	KindGraphQLQuery: `{
		"type": "object",
		"properties": {
			"endpoint": {"type": "string", "format": "uri", "pattern": "^https?://"},
			"query": {"type": "string", "minLength": 1},
			"variables": {"type": "object"},
			"auth": ` + authSchema + `
		},
		"required": ["endpoint", "query"]
	}`,
	KindDockerList: `{"type": "object"}`,
	KindDockerRun: `{
		"type": "object",
		"properties": {
			"image": {"type": "string", "minLength": 1},
			"ports": {
				"type": "object",
				"propertyNames": {"pattern": "^[0-9]+(/(tcp|udp))?$"},
				"additionalProperties": {"type": "string", "pattern": "^[0-9]+$"}
			},
			"labels": {"type": "object", "additionalProperties": {"type": "string"}}
		},
		"required": ["image"]
	}`,
	KindDockerStop: requireStrings("container"),
	KindDockerLogs: requireStrings("container"),
}

func requireStrings(fields ...string) string {
	props := make([]string, len(fields))
	quoted := make([]string, len(fields))
	for i, f := range fields {
		props[i] = fmt.Sprintf("%q: {\"type\": \"string\", \"minLength\": 1}", f)
		quoted[i] = strconv.Quote(f)
	}
	return fmt.Sprintf(`{"type": "object", "properties": {%s}, "required": [%s]}`,
		strings.Join(props, ", "), strings.Join(quoted, ", "))
}

var (
	compileOnce sync.Once
	compiled    map[Kind]*jsonschema.Schema
	compileErr  error
)

func schemas() (map[Kind]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		out := make(map[Kind]*jsonschema.Schema, len(paramSchemas))
		for kind, src := range paramSchemas {
			url := string(kind) + ".json"
			if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("failed to load %s schema: %w", kind, err)
				return
			}
			schema, err := compiler.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("failed to compile %s schema: %w", kind, err)
				return
			}
			out[kind] = schema
		}
		compiled = out
	})
	return compiled, compileErr
}

// Validate checks the invocation parameters against the kind's schema.
// Failures are reported as Validation errors naming the offending field.
func (i Invocation) Validate() error {
	if i.params == nil {
		return toolerr.NewValidation("kind", "a known tool kind", "")
	}
	all, err := schemas()
	if err != nil {
		return toolerr.NewInvalidConfig("schemas", err.Error())
	}
	schema, ok := all[i.Kind()]
	if !ok {
		return nil
	}

	raw, err := json.Marshal(i.params)
	if err != nil {
		return toolerr.NewParse(fmt.Sprintf("%#v", i.params), "parameters are not valid JSON", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return toolerr.NewParse(string(raw), "parameters are not valid JSON", err)
	}

	if err := schema.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return validationError(ve, doc)
		}
		return toolerr.NewValidation("params", "schema-conformant parameters", err.Error())
	}
	return nil
}

// validationError reports the most specific cause of a schema failure.
func validationError(ve *jsonschema.ValidationError, doc any) *toolerr.ToolError {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if field == "" {
		field = "params"
	}
	actual := ""
	if v, ok := lookupPointer(doc, leaf.InstanceLocation); ok && leaf.InstanceLocation != "" {
		b, _ := json.Marshal(v)
		actual = string(b)
	}
	te := toolerr.NewValidation(field, leaf.Message, actual)
	te.Err = ve
	return te
}

func lookupPointer(doc any, pointer string) (any, bool) {
	cur := doc
	for _, tok := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if tok == "" {
			continue
		}
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
