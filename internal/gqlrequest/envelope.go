// Package gqlrequest decodes GraphQL HTTP payloads and derives per-request metadata
// (operation, fragments, size, depth, canonical hash) shared by middleware and the handler.
package gqlrequest

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the transport-independent form of one GraphQL request.
type Envelope struct {
	Method      string
	ContentType string

	Query         string
	OperationName string
	VariablesRaw  jsoniter.RawMessage

	DocumentSizeBytes int
}

// DecodeEnvelope reads the query, operation name and variables from the URL of a GET or the
// body of a POST. A POST body is buffered and put back so later handlers can read it again.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("request is nil")
	}
	env := Envelope{Method: r.Method, ContentType: r.Header.Get("Content-Type")}

	var err error
	switch {
	case r.Method == http.MethodGet:
		env.fromQueryString(r.URL.Query())
	case r.Method == http.MethodPost && r.Body != nil:
		var body []byte
		if body, err = io.ReadAll(r.Body); err != nil {
			return env, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		err = env.fromBody(body)
	}
	env.DocumentSizeBytes = len(env.Query)
	return env, err
}

func (e *Envelope) fromQueryString(q url.Values) {
	e.Query = q.Get("query")
	e.OperationName = q.Get("operationName")
	e.setVariables([]byte(q.Get("variables")))
}

// fromBody accepts an application/graphql document or, for any other media type, a JSON
// object with query, operationName and variables members.
func (e *Envelope) fromBody(body []byte) error {
	mediaType, _, err := mime.ParseMediaType(e.ContentType)
	if err != nil {
		mediaType = strings.TrimSpace(e.ContentType)
	}
	if mediaType == "application/graphql" {
		e.Query = string(body)
		return nil
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	var payload struct {
		Query         string              `json:"query"`
		OperationName string              `json:"operationName"`
		Variables     jsoniter.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return err
	}
	e.Query, e.OperationName = payload.Query, payload.OperationName
	e.setVariables(payload.Variables)
	return nil
}

// setVariables keeps raw unless it is blank or JSON null.
func (e *Envelope) setVariables(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	e.VariablesRaw = append(jsoniter.RawMessage(nil), raw...)
}

// Variables decodes the raw variables object. Absent variables decode to an empty map.
func (e Envelope) Variables() (map[string]any, error) {
	vars := map[string]any{}
	if len(e.VariablesRaw) == 0 {
		return vars, nil
	}
	if err := json.Unmarshal(e.VariablesRaw, &vars); err != nil {
		return nil, fmt.Errorf("variables must be a JSON object: %w", err)
	}
	return vars, nil
}
