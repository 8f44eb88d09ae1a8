package artifacttype

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hamba/avro/v2"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// AvroProvider serves AVRO content using github.com/hamba/avro/v2.
// Its canonical form is the Avro Parsing Canonical Form.
type AvroProvider struct {
	compatibility *avro.SchemaCompatibility
}

// NewAvroProvider creates the Avro provider.
func NewAvroProvider() *AvroProvider {
	return &AvroProvider{compatibility: avro.NewSchemaCompatibility()}
}

// ArtifactType implements Provider.
func (p *AvroProvider) ArtifactType() string {
	return types.Avro
}

// SupportsDereference implements Provider.
func (p *AvroProvider) SupportsDereference() bool {
	return true
}

// Canonicalize implements Provider.
func (p *AvroProvider) Canonicalize(h content.Handle, resolved map[string]content.Handle) (content.Handle, error) {
	schema, err := p.parse(h, resolved)
	if err != nil {
		return content.Handle{}, err
	}
	return content.FromString(schema.String()), nil
}

// Dereference implements Provider. Every named type that the document uses
// but does not define is inlined at its first use, taken from the referenced
// schemas; later uses keep the name.
func (p *AvroProvider) Dereference(h content.Handle, resolved map[string]content.Handle) (content.Handle, error) {
	root, err := decodeAvroJSON(h)
	if err != nil {
		return content.Handle{}, err
	}

	defs := make(map[string]avroDefinition)
	for _, name := range sortedNames(resolved) {
		refRoot, err := decodeAvroJSON(resolved[name])
		if err != nil {
			return content.Handle{}, fmt.Errorf("reference %q: %w", name, err)
		}
		idx := indexAvro(refRoot)
		for full, def := range idx.defs {
			if _, exists := defs[full]; !exists {
				defs[full] = def
			}
		}
	}

	d := &avroDereferencer{defs: defs, defined: make(map[string]bool)}
	out, err := json.Marshal(d.deref(root, ""))
	if err != nil {
		return content.Handle{}, fmt.Errorf("failed to encode dereferenced schema: %w", err)
	}

	// The result must stand on its own.
	if _, err := avro.ParseWithCache(string(out), "", &avro.SchemaCache{}); err != nil {
		return content.Handle{}, fmt.Errorf("dereferenced schema is invalid: %w", err)
	}
	return content.New(out), nil
}

// RuleChecker implements Provider.
func (p *AvroProvider) RuleChecker(ruleType types.RuleType) (RuleChecker, bool) {
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

func (p *AvroProvider) checkValidity(rc RuleContext) error {
	level, err := validityLevel(rc.Configuration)
	if err != nil {
		return err
	}
	switch level {
	case ValidityNone:
		return nil
	case ValiditySyntaxOnly:
		if _, err := decodeAvroJSON(rc.UpdatedContent); err != nil {
			return violation(err.Error(), "")
		}
		return nil
	}
	if _, err := p.parse(rc.UpdatedContent, rc.ResolvedReferences); err != nil {
		return violation(err.Error(), "")
	}
	return nil
}

func (p *AvroProvider) checkCompatibility(rc RuleContext) error {
	plan, err := planCompatibility(rc.Configuration, rc.CurrentContent)
	if err != nil {
		return err
	}
	if len(plan.targets) == 0 {
		return nil
	}
	updated, err := p.parse(rc.UpdatedContent, rc.ResolvedReferences)
	if err != nil {
		return apperr.Unprocessable(err, "new schema cannot be parsed")
	}

	var causes []Violation
	for i, target := range plan.targets {
		existing, err := p.parse(target.Content, target.Resolved)
		if err != nil {
			return fmt.Errorf("failed to parse existing schema: %w", err)
		}
		if plan.backward {
			if err := p.compatibility.Compatible(updated, existing); err != nil {
				causes = append(causes, Violation{
					Description: fmt.Sprintf("new schema cannot read data written with an existing schema: %v", err),
					Context:     fmt.Sprintf("existing[%d]", i),
				})
			}
		}
		if plan.forward {
			if err := p.compatibility.Compatible(existing, updated); err != nil {
				causes = append(causes, Violation{
					Description: fmt.Sprintf("existing schema cannot read data written with the new schema: %v", err),
					Context:     fmt.Sprintf("existing[%d]", i),
				})
			}
		}
	}
	if len(causes) > 0 {
		return &ViolationError{Causes: causes}
	}
	return nil
}

// parse parses h with the named types of its references loaded into a private
// cache, references first in dependency order.
func (p *AvroProvider) parse(h content.Handle, resolved map[string]content.Handle) (avro.Schema, error) {
	cache := &avro.SchemaCache{}
	order, err := avroReferenceOrder(resolved)
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		if _, err := avro.ParseWithCache(resolved[name].String(), "", cache); err != nil {
			return nil, fmt.Errorf("reference %q: %w", name, err)
		}
	}
	schema, err := avro.ParseWithCache(h.String(), "", cache)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

var avroPrimitives = map[string]bool{
	"null": true, "boolean": true, "int": true, "long": true,
	"float": true, "double": true, "bytes": true, "string": true,
}

var avroNamedKinds = map[string]bool{
	"record": true, "error": true, "enum": true, "fixed": true,
}

type avroDefinition struct {
	node      map[string]interface{}
	namespace string
}

type avroName struct {
	name      string
	namespace string
}

type avroIndex struct {
	defs map[string]avroDefinition
	uses []avroName
}

func decodeAvroJSON(h content.Handle) (interface{}, error) {
	var root interface{}
	if err := json.Unmarshal(h.Bytes(), &root); err != nil {
		return nil, fmt.Errorf("schema is not valid JSON: %w", err)
	}
	return root, nil
}

func avroFullName(name, namespace string) string {
	if strings.Contains(name, ".") || namespace == "" {
		return name
	}
	return namespace + "." + name
}

func avroNamespaceOf(fullName string) string {
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		return fullName[:i]
	}
	return ""
}

func avroDefinitionName(obj map[string]interface{}, enclosing string) (string, bool) {
	name, _ := obj["name"].(string)
	if name == "" {
		return "", false
	}
	namespace := enclosing
	if explicit, ok := obj["namespace"].(string); ok {
		namespace = explicit
	}
	return avroFullName(name, namespace), true
}

func indexAvro(root interface{}) *avroIndex {
	idx := &avroIndex{defs: make(map[string]avroDefinition)}
	idx.walk(root, "")
	return idx
}

func (idx *avroIndex) walk(node interface{}, namespace string) {
	switch v := node.(type) {
	case string:
		if !avroPrimitives[v] {
			idx.uses = append(idx.uses, avroName{name: v, namespace: namespace})
		}
	case []interface{}:
		for _, item := range v {
			idx.walk(item, namespace)
		}
	case map[string]interface{}:
		switch t := v["type"].(type) {
		case string:
			switch {
			case avroNamedKinds[t]:
				full, ok := avroDefinitionName(v, namespace)
				if !ok {
					return
				}
				idx.defs[full] = avroDefinition{node: v, namespace: namespace}
				if t == "record" || t == "error" {
					fields, _ := v["fields"].([]interface{})
					for _, f := range fields {
						if field, ok := f.(map[string]interface{}); ok {
							idx.walk(field["type"], avroNamespaceOf(full))
						}
					}
				}
			case t == "array":
				idx.walk(v["items"], namespace)
			case t == "map":
				idx.walk(v["values"], namespace)
			case !avroPrimitives[t]:
				idx.uses = append(idx.uses, avroName{name: t, namespace: namespace})
			}
		default:
			idx.walk(t, namespace)
		}
	}
}

// resolves reports which full name a use refers to, given the known names.
func (n avroName) resolve(known func(string) bool) (string, bool) {
	qualified := avroFullName(n.name, n.namespace)
	if known(qualified) {
		return qualified, true
	}
	if known(n.name) {
		return n.name, true
	}
	return qualified, false
}

// avroReferenceOrder sorts reference names so that a reference comes after the
// references defining the types it uses. Cycles keep name order.
func avroReferenceOrder(resolved map[string]content.Handle) ([]string, error) {
	names := sortedNames(resolved)
	if len(names) < 2 {
		return names, nil
	}

	indexes := make(map[string]*avroIndex, len(names))
	definedBy := make(map[string]string)
	for _, name := range names {
		root, err := decodeAvroJSON(resolved[name])
		if err != nil {
			return nil, fmt.Errorf("reference %q: %w", name, err)
		}
		idx := indexAvro(root)
		indexes[name] = idx
		for full := range idx.defs {
			if _, taken := definedBy[full]; !taken {
				definedBy[full] = name
			}
		}
	}

	deps := make(map[string]map[string]bool, len(names))
	for _, name := range names {
		deps[name] = make(map[string]bool)
		idx := indexes[name]
		for _, use := range idx.uses {
			full, ok := use.resolve(func(s string) bool { _, ok := definedBy[s]; return ok })
			if !ok {
				continue
			}
			if owner := definedBy[full]; owner != name {
				deps[name][owner] = true
			}
		}
	}

	order := make([]string, 0, len(names))
	placed := make(map[string]bool, len(names))
	for len(order) < len(names) {
		progress := false
		for _, name := range names {
			if placed[name] {
				continue
			}
			ready := true
			for dep := range deps[name] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, name)
				placed[name] = true
				progress = true
			}
		}
		if !progress {
			for _, name := range names {
				if !placed[name] {
					order = append(order, name)
					placed[name] = true
				}
			}
		}
	}
	return order, nil
}

type avroDereferencer struct {
	defs    map[string]avroDefinition
	defined map[string]bool
}

func (d *avroDereferencer) known(full string) bool {
	if d.defined[full] {
		return true
	}
	_, ok := d.defs[full]
	return ok
}

func (d *avroDereferencer) deref(node interface{}, namespace string) interface{} {
	switch v := node.(type) {
	case string:
		return d.derefName(v, namespace)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = d.deref(item, namespace)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		switch t := v["type"].(type) {
		case string:
			switch {
			case avroNamedKinds[t]:
				full, ok := avroDefinitionName(v, namespace)
				if !ok {
					return out
				}
				d.defined[full] = true
				if t == "record" || t == "error" {
					fields, _ := v["fields"].([]interface{})
					newFields := make([]interface{}, len(fields))
					for i, f := range fields {
						field, ok := f.(map[string]interface{})
						if !ok {
							newFields[i] = f
							continue
						}
						fieldCopy := make(map[string]interface{}, len(field))
						for k, val := range field {
							fieldCopy[k] = val
						}
						fieldCopy["type"] = d.deref(field["type"], avroNamespaceOf(full))
						newFields[i] = fieldCopy
					}
					out["fields"] = newFields
				}
			case t == "array":
				out["items"] = d.deref(v["items"], namespace)
			case t == "map":
				out["values"] = d.deref(v["values"], namespace)
			case !avroPrimitives[t]:
				out["type"] = d.derefName(t, namespace)
			}
		default:
			out["type"] = d.deref(t, namespace)
		}
		return out
	}
	return node
}

func (d *avroDereferencer) derefName(name, namespace string) interface{} {
	if avroPrimitives[name] {
		return name
	}
	full, ok := avroName{name: name, namespace: namespace}.resolve(d.known)
	if !ok || d.defined[full] {
		return name
	}
	def := d.defs[full]
	inlined := deepCopyJSON(def.node).(map[string]interface{})
	if _, explicit := inlined["namespace"]; !explicit && def.namespace != "" {
		if n, _ := inlined["name"].(string); !strings.Contains(n, ".") {
			inlined["namespace"] = def.namespace
		}
	}
	return d.deref(inlined, namespace)
}

func deepCopyJSON(node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = deepCopyJSON(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = deepCopyJSON(val)
		}
		return out
	}
	return node
}

func sortedNames(m map[string]content.Handle) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
