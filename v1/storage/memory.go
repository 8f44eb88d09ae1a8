package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

type artifactKey struct {
	groupID    string
	artifactID string
}

type memContent struct {
	id            int64
	handle        content.Handle
	contentHash   string
	canonicalHash string
}

type memVersion struct {
	version   string
	globalID  int64
	contentID int64
	state     types.ArtifactState
	createdOn time.Time
	refs      []ArtifactReference
}

type memArtifact struct {
	key          artifactKey
	artifactType string
	createdOn    time.Time
	modifiedOn   time.Time
	meta         EditableMetadata
	versions     []*memVersion
	rules        map[types.RuleType]string
}

// MemoryStore is a Gateway held entirely in process memory.
// Content is deduplicated by exact digest and shared between versions.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	artifacts     map[artifactKey]*memArtifact
	contents      map[int64]*memContent
	contentByHash map[string]int64
	byGlobalID    map[int64]artifactKey
	globalRules   map[types.RuleType]string
	nextGlobalID  int64
	nextContentID int64
	totalVersions int64
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts:     make(map[artifactKey]*memArtifact),
		contents:      make(map[int64]*memContent),
		contentByHash: make(map[string]int64),
		byGlobalID:    make(map[int64]artifactKey),
		globalRules:   make(map[types.RuleType]string),
		now:           time.Now,
	}
}

func (m *MemoryStore) artifact(groupID, artifactID string) (*memArtifact, error) {
	a, ok := m.artifacts[artifactKey{groupID, artifactID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, groupID, artifactID)
	}
	return a, nil
}

func (a *memArtifact) find(version string) (*memVersion, error) {
	for _, v := range a.versions {
		if v.version == version {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s version %s", ErrVersionNotFound, a.key.groupID, a.key.artifactID, version)
}

func (a *memArtifact) latest(behavior RetrievalBehavior) *memVersion {
	for i := len(a.versions) - 1; i >= 0; i-- {
		v := a.versions[i]
		if behavior == SkipDisabledLatest && v.state == types.StateDisabled {
			continue
		}
		return v
	}
	return nil
}

// VersionOrder is the sort key of a version label: its numeric value, or 0
// for labels that are not non-negative integers.
func VersionOrder(label string) int64 {
	n, err := strconv.ParseInt(label, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (a *memArtifact) nextVersion() string {
	highest := 0
	for _, v := range a.versions {
		if n, err := strconv.Atoi(v.version); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

func (m *MemoryStore) versionMetadata(a *memArtifact, v *memVersion) *VersionMetadata {
	c := m.contents[v.contentID]
	return &VersionMetadata{
		GroupID:       a.key.groupID,
		ArtifactID:    a.key.artifactID,
		Version:       v.version,
		ArtifactType:  a.artifactType,
		GlobalID:      v.globalID,
		ContentID:     v.contentID,
		State:         v.state,
		CreatedOn:     v.createdOn,
		ContentHash:   c.contentHash,
		CanonicalHash: c.canonicalHash,
		References:    cloneReferences(v.refs),
	}
}

func cloneReferences(refs []ArtifactReference) []ArtifactReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]ArtifactReference, len(refs))
	copy(out, refs)
	return out
}

// storeContent returns the ID of the content, inserting it on first sight.
func (m *MemoryStore) storeContent(entry content.Entry) int64 {
	if id, ok := m.contentByHash[entry.ContentHash]; ok {
		return id
	}
	m.nextContentID++
	id := m.nextContentID
	m.contents[id] = &memContent{
		id:            id,
		handle:        entry.Content,
		contentHash:   entry.ContentHash,
		canonicalHash: entry.CanonicalHash,
	}
	m.contentByHash[entry.ContentHash] = id
	return id
}

func (m *MemoryStore) appendVersion(a *memArtifact, v NewVersion) (*VersionMetadata, error) {
	label := v.Version
	if label == "" {
		label = a.nextVersion()
	} else if _, err := a.find(label); err == nil {
		return nil, fmt.Errorf("%w: %s/%s version %s", ErrVersionAlreadyExists, a.key.groupID, a.key.artifactID, label)
	}

	now := m.now()
	m.nextGlobalID++
	mv := &memVersion{
		version:   label,
		globalID:  m.nextGlobalID,
		contentID: m.storeContent(v.Entry),
		state:     types.StateEnabled,
		createdOn: now,
		refs:      cloneReferences(v.References),
	}
	// Versions stay sorted by label order, then creation.
	order := VersionOrder(label)
	at := sort.Search(len(a.versions), func(i int) bool {
		return VersionOrder(a.versions[i].version) > order
	})
	a.versions = append(a.versions, nil)
	copy(a.versions[at+1:], a.versions[at:])
	a.versions[at] = mv
	a.modifiedOn = now
	m.byGlobalID[mv.globalID] = a.key
	m.totalVersions++
	return m.versionMetadata(a, mv), nil
}

// GetArtifactMetadata implements Gateway.
func (m *MemoryStore) GetArtifactMetadata(_ context.Context, groupID, artifactID string, behavior RetrievalBehavior) (*ArtifactMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return nil, err
	}
	v := a.latest(behavior)
	if v == nil {
		return nil, fmt.Errorf("%w: %s/%s has no active version", ErrVersionNotFound, groupID, artifactID)
	}
	return &ArtifactMetadata{
		GroupID:          groupID,
		ArtifactID:       artifactID,
		ArtifactType:     a.artifactType,
		Version:          v.version,
		GlobalID:         v.globalID,
		ContentID:        v.contentID,
		State:            v.state,
		CreatedOn:        a.createdOn,
		ModifiedOn:       a.modifiedOn,
		EditableMetadata: a.meta,
	}, nil
}

// CreateArtifact implements Gateway.
func (m *MemoryStore) CreateArtifact(_ context.Context, v NewVersion) (*VersionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := artifactKey{v.GroupID, v.ArtifactID}
	if _, exists := m.artifacts[key]; exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrArtifactAlreadyExists, v.GroupID, v.ArtifactID)
	}
	now := m.now()
	a := &memArtifact{
		key:          key,
		artifactType: v.ArtifactType,
		createdOn:    now,
		modifiedOn:   now,
		rules:        make(map[types.RuleType]string),
	}
	if v.Metadata != nil {
		a.meta = *v.Metadata
	}
	md, err := m.appendVersion(a, v)
	if err != nil {
		return nil, err
	}
	m.artifacts[key] = a
	return md, nil
}

// UpdateArtifact implements Gateway.
func (m *MemoryStore) UpdateArtifact(_ context.Context, v NewVersion) (*VersionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.artifact(v.GroupID, v.ArtifactID)
	if err != nil {
		return nil, err
	}
	if v.Metadata != nil {
		a.meta = *v.Metadata
	}
	return m.appendVersion(a, v)
}

// GetArtifactVersions implements Gateway.
func (m *MemoryStore) GetArtifactVersions(_ context.Context, groupID, artifactID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(a.versions))
	for _, v := range a.versions {
		labels = append(labels, v.version)
	}
	return labels, nil
}

// GetArtifactVersion implements Gateway.
func (m *MemoryStore) GetArtifactVersion(_ context.Context, groupID, artifactID, version string) (*StoredArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return nil, err
	}
	v, err := a.find(version)
	if err != nil {
		return nil, err
	}
	return &StoredArtifact{
		GlobalID:   v.globalID,
		ContentID:  v.contentID,
		Version:    v.version,
		State:      v.state,
		Content:    m.contents[v.contentID].handle,
		References: cloneReferences(v.refs),
	}, nil
}

// GetArtifactVersionMetadata implements Gateway.
func (m *MemoryStore) GetArtifactVersionMetadata(_ context.Context, groupID, artifactID, version string) (*VersionMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return nil, err
	}
	v, err := a.find(version)
	if err != nil {
		return nil, err
	}
	return m.versionMetadata(a, v), nil
}

// GetArtifactVersionMetadataByContentHash implements Gateway.
func (m *MemoryStore) GetArtifactVersionMetadataByContentHash(_ context.Context, groupID, artifactID string, canonical bool, hash string) (*VersionMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return nil, err
	}
	for _, v := range a.versions {
		c := m.contents[v.contentID]
		stored := c.contentHash
		if canonical {
			stored = c.canonicalHash
		}
		if stored == hash {
			return m.versionMetadata(a, v), nil
		}
	}
	return nil, fmt.Errorf("%w: no version of %s/%s matches content", ErrVersionNotFound, groupID, artifactID)
}

// GetArtifactVersionMetadataByGlobalID implements Gateway.
func (m *MemoryStore) GetArtifactVersionMetadataByGlobalID(_ context.Context, globalID int64) (*VersionMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byGlobalID[globalID]
	if !ok {
		return nil, fmt.Errorf("%w: global id %d", ErrVersionNotFound, globalID)
	}
	a := m.artifacts[key]
	for _, v := range a.versions {
		if v.globalID == globalID {
			return m.versionMetadata(a, v), nil
		}
	}
	return nil, fmt.Errorf("%w: global id %d", ErrVersionNotFound, globalID)
}

// UpdateArtifactVersionState implements Gateway.
func (m *MemoryStore) UpdateArtifactVersionState(_ context.Context, groupID, artifactID, version string, state types.ArtifactState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return err
	}
	v, err := a.find(version)
	if err != nil {
		return err
	}
	v.state = state
	a.modifiedOn = m.now()
	return nil
}

// GetArtifactRules implements Gateway.
func (m *MemoryStore) GetArtifactRules(_ context.Context, groupID, artifactID string) ([]RuleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return nil, err
	}
	return ruleList(a.rules), nil
}

// GetArtifactRule implements Gateway.
func (m *MemoryStore) GetArtifactRule(_ context.Context, groupID, artifactID string, ruleType types.RuleType) (*RuleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return nil, err
	}
	cfg, ok := a.rules[ruleType]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s/%s", ErrRuleNotFound, ruleType, groupID, artifactID)
	}
	return &RuleConfig{Type: ruleType, Configuration: cfg}, nil
}

// SetArtifactRule implements Gateway.
func (m *MemoryStore) SetArtifactRule(_ context.Context, groupID, artifactID string, rule RuleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return err
	}
	a.rules[rule.Type] = rule.Configuration
	return nil
}

// DeleteArtifactRule implements Gateway.
func (m *MemoryStore) DeleteArtifactRule(_ context.Context, groupID, artifactID string, ruleType types.RuleType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return err
	}
	if _, ok := a.rules[ruleType]; !ok {
		return fmt.Errorf("%w: %s on %s/%s", ErrRuleNotFound, ruleType, groupID, artifactID)
	}
	delete(a.rules, ruleType)
	return nil
}

// GetGlobalRules implements Gateway.
func (m *MemoryStore) GetGlobalRules(_ context.Context) ([]RuleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ruleList(m.globalRules), nil
}

// GetGlobalRule implements Gateway.
func (m *MemoryStore) GetGlobalRule(_ context.Context, ruleType types.RuleType) (*RuleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.globalRules[ruleType]
	if !ok {
		return nil, fmt.Errorf("%w: global %s", ErrRuleNotFound, ruleType)
	}
	return &RuleConfig{Type: ruleType, Configuration: cfg}, nil
}

// SetGlobalRule implements Gateway.
func (m *MemoryStore) SetGlobalRule(_ context.Context, rule RuleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalRules[rule.Type] = rule.Configuration
	return nil
}

// DeleteGlobalRule implements Gateway.
func (m *MemoryStore) DeleteGlobalRule(_ context.Context, ruleType types.RuleType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.globalRules[ruleType]; !ok {
		return fmt.Errorf("%w: global %s", ErrRuleNotFound, ruleType)
	}
	delete(m.globalRules, ruleType)
	return nil
}

// CountArtifacts implements Gateway.
func (m *MemoryStore) CountArtifacts(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.artifacts)), nil
}

// CountArtifactVersions implements Gateway.
func (m *MemoryStore) CountArtifactVersions(_ context.Context, groupID, artifactID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.artifact(groupID, artifactID)
	if err != nil {
		return 0, err
	}
	return int64(len(a.versions)), nil
}

// CountTotalVersions implements Gateway.
func (m *MemoryStore) CountTotalVersions(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalVersions, nil
}

func ruleList(rules map[types.RuleType]string) []RuleConfig {
	out := make([]RuleConfig, 0, len(rules))
	for t, cfg := range rules {
		out = append(out, RuleConfig{Type: t, Configuration: cfg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
