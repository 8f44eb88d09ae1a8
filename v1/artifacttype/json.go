package artifacttype

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// schemaBaseURL is the base against which reference names are registered as
// compiler resources, so a relative "$ref": "address.json" finds the
// reference named "address.json".
const schemaBaseURL = "https://registry.local/schemas/"

// JSONSchemaProvider serves JSON Schema content. The canonical form is the
// RFC 8785 serialization of the document.
type JSONSchemaProvider struct{}

// NewJSONSchemaProvider creates the JSON Schema provider.
func NewJSONSchemaProvider() *JSONSchemaProvider {
	return &JSONSchemaProvider{}
}

// ArtifactType implements Provider.
func (p *JSONSchemaProvider) ArtifactType() string {
	return types.JSON
}

// SupportsDereference implements Provider.
func (p *JSONSchemaProvider) SupportsDereference() bool {
	return true
}

// Canonicalize implements Provider.
func (p *JSONSchemaProvider) Canonicalize(h content.Handle, _ map[string]content.Handle) (content.Handle, error) {
	out, err := jcs.Transform(h.Bytes())
	if err != nil {
		return content.Handle{}, fmt.Errorf("schema is not valid JSON: %w", err)
	}
	return content.New(out), nil
}

// Dereference implements Provider. A "$ref" whose document part names a
// resolved reference is replaced by that document, or by the part its JSON
// pointer fragment selects. "$id" and "$schema" of inlined documents are dropped.
func (p *JSONSchemaProvider) Dereference(h content.Handle, resolved map[string]content.Handle) (content.Handle, error) {
	root, err := decodeJSON(h)
	if err != nil {
		return content.Handle{}, err
	}

	docs := make(map[string]interface{}, len(resolved))
	for name, ref := range resolved {
		doc, err := decodeJSON(ref)
		if err != nil {
			return content.Handle{}, fmt.Errorf("reference %q: %w", name, err)
		}
		docs[name] = doc
	}

	d := &jsonDereferencer{docs: docs, active: make(map[string]bool)}
	out, err := d.deref(root)
	if err != nil {
		return content.Handle{}, err
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return content.Handle{}, fmt.Errorf("failed to encode dereferenced schema: %w", err)
	}
	return content.New(encoded), nil
}

// RuleChecker implements Provider.
func (p *JSONSchemaProvider) RuleChecker(ruleType types.RuleType) (RuleChecker, bool) {
	switch ruleType {
	case types.RuleValidity:
		return p.checkValidity, true
	case types.RuleCompatibility:
		return p.checkCompatibility, true
	case types.RuleIntegrity:
		return checkIntegrity, true
	}
	return nil, false
}

func (p *JSONSchemaProvider) checkValidity(rc RuleContext) error {
	level, err := validityLevel(rc.Configuration)
	if err != nil {
		return err
	}
	switch level {
	case ValidityNone:
		return nil
	case ValiditySyntaxOnly:
		if _, err := decodeJSON(rc.UpdatedContent); err != nil {
			return violation(err.Error(), "")
		}
		return nil
	}
	if err := compileJSONSchema(rc.UpdatedContent, rc.ResolvedReferences); err != nil {
		return violation(err.Error(), "")
	}
	return nil
}

func (p *JSONSchemaProvider) checkCompatibility(rc RuleContext) error {
	plan, err := planCompatibility(rc.Configuration, rc.CurrentContent)
	if err != nil {
		return err
	}
	if len(plan.targets) == 0 {
		return nil
	}
	updated, err := p.comparable(rc.UpdatedContent, rc.ResolvedReferences)
	if err != nil {
		return apperr.Unprocessable(err, "new schema cannot be parsed")
	}

	var causes []Violation
	for i, target := range plan.targets {
		existing, err := p.comparable(target.Content, target.Resolved)
		if err != nil {
			return fmt.Errorf("failed to parse existing schema: %w", err)
		}
		prefix := fmt.Sprintf("existing[%d]", i)
		if plan.backward {
			causes = append(causes, jsonReadable(updated, existing, prefix)...)
		}
		if plan.forward {
			causes = append(causes, jsonReadable(existing, updated, prefix)...)
		}
	}
	if len(causes) > 0 {
		return &ViolationError{Causes: causes}
	}
	return nil
}

// comparable returns the decoded, dereferenced form of h.
func (p *JSONSchemaProvider) comparable(h content.Handle, resolved map[string]content.Handle) (interface{}, error) {
	if len(resolved) > 0 {
		if deref, err := p.Dereference(h, resolved); err == nil {
			h = deref
		}
	}
	return decodeJSON(h)
}

func decodeJSON(h content.Handle) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(h.Bytes()))
	dec.UseNumber()
	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("schema is not valid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("schema is not valid JSON: trailing data")
	}
	return root, nil
}

func referenceURL(name string) string {
	if strings.Contains(name, "://") {
		return name
	}
	return schemaBaseURL + strings.TrimPrefix(name, "/")
}

func compileJSONSchema(h content.Handle, resolved map[string]content.Handle) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	for _, name := range sortedNames(resolved) {
		if err := c.AddResource(referenceURL(name), bytes.NewReader(resolved[name].Bytes())); err != nil {
			return fmt.Errorf("reference %q: %w", name, err)
		}
	}

	mainURL := schemaBaseURL + "__document.json"
	if err := c.AddResource(mainURL, bytes.NewReader(h.Bytes())); err != nil {
		return err
	}
	if _, err := c.Compile(mainURL); err != nil {
		return err
	}
	return nil
}

type jsonDereferencer struct {
	docs   map[string]interface{}
	active map[string]bool
}

func (d *jsonDereferencer) deref(node interface{}) (interface{}, error) {
	switch v := node.(type) {
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			x, err := d.deref(item)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok {
			if target, found, err := d.target(ref); err != nil {
				return nil, err
			} else if found {
				return d.inline(ref, target, v)
			}
		}
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			x, err := d.deref(val)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	}
	return node, nil
}

func (d *jsonDereferencer) target(ref string) (interface{}, bool, error) {
	docPart, fragment, _ := strings.Cut(ref, "#")
	if docPart == "" {
		return nil, false, nil
	}
	doc, ok := d.docs[docPart]
	if !ok {
		return nil, false, nil
	}
	target, err := jsonPointer(doc, fragment)
	if err != nil {
		return nil, false, fmt.Errorf("reference %q: %w", ref, err)
	}
	return target, true, nil
}

func (d *jsonDereferencer) inline(ref string, target interface{}, siblings map[string]interface{}) (interface{}, error) {
	if d.active[ref] {
		// Recursive reference: leave the pointer in place.
		return siblings, nil
	}
	d.active[ref] = true
	defer delete(d.active, ref)

	resolved, err := d.deref(deepCopyJSON(target))
	if err != nil {
		return nil, err
	}
	obj, ok := resolved.(map[string]interface{})
	if !ok {
		return resolved, nil
	}
	delete(obj, "$id")
	delete(obj, "$schema")
	for k, val := range siblings {
		if k == "$ref" {
			continue
		}
		if _, exists := obj[k]; exists {
			continue
		}
		x, err := d.deref(val)
		if err != nil {
			return nil, err
		}
		obj[k] = x
	}
	return obj, nil
}

// jsonPointer evaluates an RFC 6901 pointer against doc.
func jsonPointer(doc interface{}, pointer string) (interface{}, error) {
	if pointer == "" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("unsupported fragment %q", pointer)
	}
	cur := doc
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		switch v := cur.(type) {
		case map[string]interface{}:
			next, ok := v[token]
			if !ok {
				return nil, fmt.Errorf("pointer %q: no member %q", pointer, token)
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("pointer %q: bad index %q", pointer, token)
			}
			cur = v[i]
		default:
			return nil, fmt.Errorf("pointer %q: cannot descend into scalar", pointer)
		}
	}
	return cur, nil
}

// jsonReadable reports why data valid against writer may be rejected by reader.
func jsonReadable(reader, writer interface{}, context string) []Violation {
	r, rok := reader.(map[string]interface{})
	w, wok := writer.(map[string]interface{})
	if !rok || !wok {
		if !reflect.DeepEqual(reader, writer) {
			return []Violation{{Description: "schema kind changed", Context: context}}
		}
		return nil
	}

	var causes []Violation
	if rt, ok := r["type"]; ok {
		if wt, ok := w["type"]; ok && !reflect.DeepEqual(rt, wt) {
			causes = append(causes, Violation{
				Description: fmt.Sprintf("type changed from %v to %v", wt, rt),
				Context:     context,
			})
		}
	}

	writerRequired := stringSet(w["required"])
	for _, name := range sortedKeys(stringSet(r["required"])) {
		if !writerRequired[name] {
			causes = append(causes, Violation{
				Description: fmt.Sprintf("property %q is required by the reader but not guaranteed by the writer", name),
				Context:     context + "/required",
			})
		}
	}

	rProps, _ := r["properties"].(map[string]interface{})
	wProps, _ := w["properties"].(map[string]interface{})
	for _, name := range sortedKeys(boolKeys(rProps)) {
		wp, ok := wProps[name]
		if !ok {
			continue
		}
		causes = append(causes, jsonReadable(rProps[name], wp, context+"/properties/"+name)...)
	}
	return causes
}

func stringSet(v interface{}) map[string]bool {
	out := make(map[string]bool)
	list, _ := v.([]interface{})
	for _, item := range list {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
}

func boolKeys(m map[string]interface{}) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
