package artifacttype

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/parser"
	"github.com/bufbuild/protocompile/reporter"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// protoSourceName is the file name given to submitted .proto source text.
const protoSourceName = "schema.proto"

// ProtobufProvider serves PROTOBUF content, given either as .proto source
// text or as a base64 encoded FileDescriptorProto. Source text is compiled
// with protocompile, so both forms are checked through descriptors.
type ProtobufProvider struct{}

// NewProtobufProvider creates the Protobuf provider.
func NewProtobufProvider() *ProtobufProvider {
	return &ProtobufProvider{}
}

// ArtifactType implements Provider.
func (p *ProtobufProvider) ArtifactType() string {
	return types.Protobuf
}

// SupportsDereference implements Provider.
func (p *ProtobufProvider) SupportsDereference() bool {
	return false
}

// Dereference implements Provider.
func (p *ProtobufProvider) Dereference(content.Handle, map[string]content.Handle) (content.Handle, error) {
	return content.Handle{}, unsupportedDereference(types.Protobuf)
}

// Canonicalize implements Provider. Both forms canonicalize to the
// deterministic marshal of their descriptor without source info, so comments
// and layout of source text do not take part in identity.
func (p *ProtobufProvider) Canonicalize(h content.Handle, _ map[string]content.Handle) (content.Handle, error) {
	fd, ok := decodeDescriptor(h)
	if !ok {
		var err error
		if fd, err = parseProtoSource(h, true); err != nil {
			return content.Handle{}, err
		}
	}
	clone := proto.Clone(fd).(*descriptorpb.FileDescriptorProto)
	clone.SourceCodeInfo = nil
	out, err := proto.MarshalOptions{Deterministic: true}.Marshal(clone)
	if err != nil {
		return content.Handle{}, fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	return content.FromString(base64.StdEncoding.EncodeToString(out)), nil
}

// RuleChecker implements Provider.
func (p *ProtobufProvider) RuleChecker(ruleType types.RuleType) (RuleChecker, bool) {
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

func (p *ProtobufProvider) checkValidity(rc RuleContext) error {
	level, err := validityLevel(rc.Configuration)
	if err != nil {
		return err
	}
	if level == ValidityNone {
		return nil
	}

	if fd, ok := decodeDescriptor(rc.UpdatedContent); ok {
		if level == ValiditySyntaxOnly {
			return nil
		}
		files, err := registerDescriptors(rc.ResolvedReferences)
		if err != nil {
			return violation(err.Error(), "")
		}
		if _, err := protodesc.NewFile(fd, files); err != nil {
			return violation(err.Error(), fd.GetName())
		}
		return nil
	}

	if level == ValiditySyntaxOnly {
		if _, err := parseProtoSource(rc.UpdatedContent, false); err != nil {
			return violation(err.Error(), "")
		}
		return nil
	}
	if _, err := compileProtoSource(rc.UpdatedContent, rc.ResolvedReferences); err != nil {
		return violation(err.Error(), "")
	}
	return nil
}

// checkCompatibility forbids changing the type of a field number present in
// both versions. The rule is symmetric, so every level applies it the same
// way; transitive levels check every existing version.
func (p *ProtobufProvider) checkCompatibility(rc RuleContext) error {
	plan, err := planCompatibility(rc.Configuration, rc.CurrentContent)
	if err != nil {
		return err
	}
	if len(plan.targets) == 0 {
		return nil
	}
	updated, err := protoFieldTable(rc.UpdatedContent, rc.ResolvedReferences)
	if err != nil {
		return apperr.Unprocessable(err, "new schema cannot be parsed")
	}

	var causes []Violation
	for i, target := range plan.targets {
		existing, err := protoFieldTable(target.Content, target.Resolved)
		if err != nil {
			return fmt.Errorf("failed to parse existing schema: %w", err)
		}
		for _, name := range sortedMessageNames(existing) {
			newFields, ok := updated[name]
			if !ok {
				continue
			}
			for _, old := range existing[name] {
				f, ok := newFields[old.number]
				if !ok || f.typ == old.typ {
					continue
				}
				causes = append(causes, Violation{
					Description: fmt.Sprintf("field number %d changed type from %q to %q", old.number, old.typ, f.typ),
					Context:     fmt.Sprintf("existing[%d]/%s", i, name),
				})
			}
		}
	}
	if len(causes) > 0 {
		sort.Slice(causes, func(i, j int) bool {
			if causes[i].Context != causes[j].Context {
				return causes[i].Context < causes[j].Context
			}
			return causes[i].Description < causes[j].Description
		})
		return &ViolationError{Causes: causes}
	}
	return nil
}

// decodeDescriptor reports whether h is a base64 FileDescriptorProto.
func decodeDescriptor(h content.Handle) (*descriptorpb.FileDescriptorProto, bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(h.String()))
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	fd := &descriptorpb.FileDescriptorProto{}
	if err := proto.Unmarshal(raw, fd); err != nil {
		return nil, false
	}
	if fd.GetName() == "" {
		return nil, false
	}
	return fd, true
}

// parseProtoSource parses .proto text into an unlinked descriptor. With
// validate set, the checks that need no imports (field numbers, labels,
// names) run as well.
func parseProtoSource(h content.Handle, validate bool) (*descriptorpb.FileDescriptorProto, error) {
	handler := reporter.NewHandler(nil)
	node, err := parser.Parse(protoSourceName, strings.NewReader(h.String()), handler)
	if err != nil {
		return nil, err
	}
	result, err := parser.ResultFromAST(node, validate, handler)
	if err != nil {
		return nil, err
	}
	return result.FileDescriptorProto(), nil
}

// compileProtoSource parses and links .proto text against the resolved
// references, keyed by import path. Well-known imports are built in.
func compileProtoSource(h content.Handle, resolved map[string]content.Handle) (*descriptorpb.FileDescriptorProto, error) {
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(protoResolver(h, resolved)),
	}
	files, err := compiler.Compile(context.Background(), protoSourceName)
	if err != nil {
		return nil, err
	}
	return protodesc.ToFileDescriptorProto(files[0]), nil
}

func protoResolver(h content.Handle, resolved map[string]content.Handle) protocompile.Resolver {
	return protocompile.ResolverFunc(func(path string) (protocompile.SearchResult, error) {
		if path == protoSourceName {
			return protocompile.SearchResult{Source: strings.NewReader(h.String())}, nil
		}
		ref, ok := resolved[path]
		if !ok {
			return protocompile.SearchResult{}, fmt.Errorf("import %q: %w", path, fs.ErrNotExist)
		}
		if fd, ok := decodeDescriptor(ref); ok {
			clone := proto.Clone(fd).(*descriptorpb.FileDescriptorProto)
			clone.Name = proto.String(path)
			return protocompile.SearchResult{Proto: clone}, nil
		}
		return protocompile.SearchResult{Source: strings.NewReader(ref.String())}, nil
	})
}

// registerDescriptors builds a file registry from the descriptor-form
// references, registering each once all of its imports are present.
func registerDescriptors(resolved map[string]content.Handle) (*protoregistry.Files, error) {
	files := new(protoregistry.Files)
	var pending []*descriptorpb.FileDescriptorProto
	for _, name := range sortedNames(resolved) {
		if fd, ok := decodeDescriptor(resolved[name]); ok {
			pending = append(pending, fd)
		}
	}

	for len(pending) > 0 {
		var next []*descriptorpb.FileDescriptorProto
		var lastErr error
		for _, fd := range pending {
			file, err := protodesc.NewFile(fd, files)
			if err != nil {
				lastErr = err
				next = append(next, fd)
				continue
			}
			if err := files.RegisterFile(file); err != nil {
				return nil, fmt.Errorf("reference %q: %w", fd.GetName(), err)
			}
		}
		if len(next) == len(pending) {
			return nil, fmt.Errorf("reference %q: %w", next[0].GetName(), lastErr)
		}
		pending = next
	}
	return files, nil
}

type protoField struct {
	name   string
	typ    string
	number int32
}

// protoFieldTable maps full message names to their fields by number. Source
// text is compiled so that type names are fully qualified in both forms.
func protoFieldTable(h content.Handle, resolved map[string]content.Handle) (map[string]map[int32]protoField, error) {
	fd, ok := decodeDescriptor(h)
	if !ok {
		var err error
		if fd, err = compileProtoSource(h, resolved); err != nil {
			return nil, err
		}
	}
	out := make(map[string]map[int32]protoField)
	for _, msg := range fd.GetMessageType() {
		collectDescriptorFields(out, fd.GetPackage(), msg)
	}
	return out, nil
}

func collectDescriptorFields(out map[string]map[int32]protoField, scope string, msg *descriptorpb.DescriptorProto) {
	name := msg.GetName()
	if scope != "" {
		name = scope + "." + name
	}
	fields := make(map[int32]protoField, len(msg.GetField()))
	for _, f := range msg.GetField() {
		typ := strings.ToLower(strings.TrimPrefix(f.GetType().String(), "TYPE_"))
		if tn := f.GetTypeName(); tn != "" {
			typ = strings.TrimPrefix(tn, ".")
		}
		if f.GetLabel() == descriptorpb.FieldDescriptorProto_LABEL_REPEATED {
			typ = "repeated " + typ
		}
		fields[f.GetNumber()] = protoField{name: f.GetName(), typ: typ, number: f.GetNumber()}
	}
	out[name] = fields
	for _, nested := range msg.GetNestedType() {
		collectDescriptorFields(out, name, nested)
	}
}

func sortedMessageNames(m map[string]map[int32]protoField) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
