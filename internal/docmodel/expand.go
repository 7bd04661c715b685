package docmodel

import (
	"strconv"
	"strings"

	"github.com/osapiref/osapiref/internal/spec"
)

// ActionSuffix marks endpoints that multiplex several actions onto one URL.
const ActionSuffix = "/action"

// Discriminator values understood under the x-openstack extension.
const (
	DiscriminatorAction       = "action"
	DiscriminatorMicroversion = "microversion"
)

// Expansion is one logical operation produced from a path/method entry.
// Action is empty for plain operations. Body is the request schema documented
// for this expansion: the variant schema for actions, otherwise the JSON
// request body schema (nil when absent).
type Expansion struct {
	Operation *spec.Node
	Action    string
	Body      *spec.Node
}

// Expand turns a normalized operation into its documented operations. Action
// endpoints whose JSON body is a oneOf union with discriminator "action" yield
// one expansion per union member; everything else yields exactly one.
func Expand(path string, method spec.HttpMethod, op *spec.Node) ([]Expansion, error) {
	if !op.IsObject() {
		return nil, spec.Malformed(spec.PointerTo("paths", path, string(method)), "docmodel: operation %s %s must be a mapping", strings.ToUpper(string(method)), path)
	}
	body := jsonSchema(op.Get("requestBody"))
	single := []Expansion{{Operation: op, Body: body}}
	if !strings.HasSuffix(path, ActionSuffix) || !body.Truthy() {
		return single, nil
	}
	variants := body.Get("oneOf").Items()
	if len(variants) == 0 || discriminator(body) != DiscriminatorAction {
		return single, nil
	}

	out := make([]Expansion, 0, len(variants))
	for i, v := range variants {
		name := extension(v, "action-name").Text()
		if name == "" {
			// Fall back to the first declared property, e.g. {"resize": {...}}.
			props := v.Get("properties").Object()
			if props.Len() == 0 {
				ptr := spec.PointerTo("paths", path, string(method), "requestBody", "content", "application/json", "schema", "oneOf", strconv.Itoa(i))
				return nil, spec.Malformed(ptr, "docmodel: action variant %d of %s %s has neither an action name nor properties", i, strings.ToUpper(string(method)), path)
			}
			name = props.Keys()[0]
		}
		out = append(out, Expansion{Operation: op, Action: name, Body: v})
	}
	return out, nil
}

// OperationID derives a documentation id from a raw operationId: ':' and '/'
// become '_', and action variants get a "-<action>" suffix.
func OperationID(raw, action string) string {
	id := strings.NewReplacer(":", "_", "/", "_").Replace(raw)
	if action != "" {
		id += "-" + action
	}
	return id
}

// jsonSchema returns the application/json schema of a request body or response.
func jsonSchema(container *spec.Node) *spec.Node {
	return container.Lookup("content", "application/json", "schema")
}

func extension(n *spec.Node, key string) *spec.Node {
	return n.Lookup("x-openstack", key)
}

func discriminator(n *spec.Node) string {
	return extension(n, "discriminator").Text()
}
