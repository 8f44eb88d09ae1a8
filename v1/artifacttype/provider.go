// Package artifacttype holds the per-format capabilities of the registry:
// canonicalization, dereferencing and rule checking for each content type.
//
// The core never inspects schema documents itself. It selects a Provider by
// the artifact type tag carried on every artifact and calls into it. Adding a
// format means adding a Provider and registering it with the Factory.
package artifacttype

import (
	"sort"
	"strings"
	"sync"

	"github.com/Aleph-Alpha/schema-registry/v1/apperr"
	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// VersionContent is the content of an existing version with its own resolved references.
type VersionContent struct {
	Content  content.Handle
	Resolved map[string]content.Handle
}

// RuleContext is the input of a rule checker.
type RuleContext struct {
	GroupID       string
	ArtifactID    string
	ArtifactType  string
	Configuration string

	// CurrentContent holds existing versions, oldest first. Empty on create.
	CurrentContent []VersionContent

	UpdatedContent     content.Handle
	References         []storage.ArtifactReference
	ResolvedReferences map[string]content.Handle
}

// Violation describes one reason a rule rejected content.
type Violation struct {
	Description string `json:"description"`
	Context     string `json:"context,omitempty"`
}

// ViolationError is returned by a RuleChecker when content breaks the rule.
// Any other error returned by a checker is an internal failure.
type ViolationError struct {
	Causes []Violation
}

func (e *ViolationError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		if c.Context != "" {
			parts = append(parts, c.Description+" at "+c.Context)
		} else {
			parts = append(parts, c.Description)
		}
	}
	return strings.Join(parts, "; ")
}

func violation(description, context string) *ViolationError {
	return &ViolationError{Causes: []Violation{{Description: description, Context: context}}}
}

// RuleChecker evaluates one rule type against a RuleContext.
type RuleChecker func(rc RuleContext) error

// Provider exposes the capabilities of one content type.
type Provider interface {
	// ArtifactType returns the type tag served by this provider.
	ArtifactType() string

	// Canonicalize returns the canonical form of h.
	Canonicalize(h content.Handle, resolved map[string]content.Handle) (content.Handle, error)

	// Dereference inlines referenced content, producing a self-contained document.
	// Types without dereference support return an UnsupportedFormat error.
	Dereference(h content.Handle, resolved map[string]content.Handle) (content.Handle, error)

	// SupportsDereference reports whether Dereference is implemented.
	SupportsDereference() bool

	// RuleChecker returns the checker for ruleType, if the type supports it.
	RuleChecker(ruleType types.RuleType) (RuleChecker, bool)
}

// Factory is the capability table indexed by artifact type tag.
type Factory struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewFactory creates a factory serving the given providers.
func NewFactory(providers ...Provider) *Factory {
	f := &Factory{providers: make(map[string]Provider)}
	for _, p := range providers {
		f.Register(p)
	}
	return f
}

// NewDefaultFactory creates a factory with the Avro, JSON Schema and Protobuf providers.
func NewDefaultFactory() *Factory {
	return NewFactory(NewAvroProvider(), NewJSONSchemaProvider(), NewProtobufProvider())
}

// Register adds or replaces the provider for p.ArtifactType().
func (f *Factory) Register(p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[strings.ToUpper(p.ArtifactType())] = p
}

// Provider returns the provider for artifactType or an UnsupportedType error.
func (f *Factory) Provider(artifactType string) (Provider, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.providers[strings.ToUpper(artifactType)]
	if !ok {
		return nil, apperr.New(apperr.KindUnsupportedType, "unsupported artifact type %q", artifactType)
	}
	return p, nil
}

// Canonicalizer implements content.CanonicalizerSource.
func (f *Factory) Canonicalizer(artifactType string) (content.Canonicalizer, error) {
	return f.Provider(artifactType)
}

// Types returns the registered type tags in sorted order.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.providers))
	for t := range f.providers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func unsupportedDereference(artifactType string) error {
	return apperr.New(apperr.KindUnsupportedFormat, "dereferencing is not supported for %s content", artifactType)
}
