package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Aleph-Alpha/schema-registry/v1/registry"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

// action runs a parsed command and returns the value to print.
type action func(ctx context.Context, e env) (interface{}, error)

type command struct {
	name    string
	summary string
	parse   func(args []string) (action, error)
}

var commands = []command{
	{"register", "register content as a new artifact or a new version", parseRegister},
	{"lookup", "find the version holding the given content", parseLookup},
	{"resolve-version", "resolve a version label such as latest", parseResolveVersion},
	{"is-active", "report whether a version is ENABLED or DEPRECATED", parseIsActive},
	{"compat", "test content against the compatibility rule", parseCompat},
	{"set-state", "change the state of a version", parseSetState},
	{"set-rule", "configure or delete a global or artifact rule", parseSetRule},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError("%s: %v", fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return usageError("%s: unexpected arguments %v", fs.Name(), fs.Args())
	}
	return nil
}

func groupOrDefault(g string) string {
	if g == "" {
		return storage.DefaultGroupID
	}
	return g
}

func parseRegister(args []string) (action, error) {
	var (
		coords      coordinates
		src         contentFlags
		version     string
		name        string
		description string
		labels      []string
		properties  []string
		client      string
	)
	fs := newFlagSet("register")
	coords.addFlags(fs)
	src.addFlags(fs)
	fs.StringVar(&version, "version", "", "explicit version label (assigned by storage when empty)")
	fs.StringVar(&name, "name", "", "artifact name")
	fs.StringVar(&description, "description", "", "artifact description")
	fs.StringArrayVar(&labels, "label", nil, "artifact label, repeatable")
	fs.StringArrayVar(&properties, "property", nil, "artifact property as key=value, repeatable")
	fs.StringVar(&client, "client", "", "client identity used for request rate limiting")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := coords.require(); err != nil {
		return nil, err
	}
	body, refs, err := src.load()
	if err != nil {
		return nil, err
	}
	props, err := parseProperties(properties)
	if err != nil {
		return nil, err
	}

	var meta *storage.EditableMetadata
	if name != "" || description != "" || len(labels) > 0 || len(props) > 0 {
		meta = &storage.EditableMetadata{Name: name, Description: description, Labels: labels, Properties: props}
	}

	return func(ctx context.Context, e env) (interface{}, error) {
		return e.Registry.CreateOrUpdate(ctx, registry.RegisterRequest{
			GroupID:      coords.group,
			ArtifactID:   coords.artifact,
			ArtifactType: src.artifactType,
			Content:      body,
			References:   refs,
			Version:      version,
			Metadata:     meta,
			Client:       client,
		})
	}, nil
}

func parseLookup(args []string) (action, error) {
	var (
		coords    coordinates
		src       contentFlags
		normalize bool
	)
	fs := newFlagSet("lookup")
	coords.addFlags(fs)
	src.addFlags(fs)
	fs.BoolVar(&normalize, "normalize", false, "match canonically equivalent content")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := coords.require(); err != nil {
		return nil, err
	}
	body, refs, err := src.load()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, e env) (interface{}, error) {
		return e.Registry.LookupByContent(ctx, registry.LookupRequest{
			GroupID:      coords.group,
			ArtifactID:   coords.artifact,
			ArtifactType: src.artifactType,
			Content:      body,
			References:   refs,
			Normalize:    normalize,
		})
	}, nil
}

func parseResolveVersion(args []string) (action, error) {
	var (
		coords coordinates
		label  string
	)
	fs := newFlagSet("resolve-version")
	coords.addFlags(fs)
	fs.StringVar(&label, "version", "latest", "version label")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := coords.require(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, e env) (interface{}, error) {
		v, err := e.Registry.ResolveVersionLabel(ctx, coords.group, coords.artifact, label)
		if err != nil {
			return nil, err
		}
		return map[string]string{"version": v}, nil
	}, nil
}

func parseIsActive(args []string) (action, error) {
	var (
		coords coordinates
		label  string
	)
	fs := newFlagSet("is-active")
	coords.addFlags(fs)
	fs.StringVar(&label, "version", "latest", "version label")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := coords.require(); err != nil {
		return nil, err
	}

	return func(ctx context.Context, e env) (interface{}, error) {
		active, err := e.Registry.IsActive(ctx, coords.group, coords.artifact, label)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"active": active}, nil
	}, nil
}

func parseCompat(args []string) (action, error) {
	var (
		coords coordinates
		src    contentFlags
		label  string
	)
	fs := newFlagSet("compat")
	coords.addFlags(fs)
	src.addFlags(fs)
	fs.StringVar(&label, "version", "latest", "version to test against")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := coords.require(); err != nil {
		return nil, err
	}
	body, refs, err := src.load()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, e env) (interface{}, error) {
		return e.Registry.CheckCompatibility(ctx, registry.CompatibilityRequest{
			GroupID:      coords.group,
			ArtifactID:   coords.artifact,
			ArtifactType: src.artifactType,
			Content:      body,
			References:   refs,
			Version:      label,
		})
	}, nil
}

type stateResult struct {
	GroupID    string              `json:"groupId"`
	ArtifactID string              `json:"artifactId"`
	Version    string              `json:"version"`
	State      types.ArtifactState `json:"state"`
}

func parseSetState(args []string) (action, error) {
	var (
		coords  coordinates
		version string
		state   string
	)
	fs := newFlagSet("set-state")
	coords.addFlags(fs)
	fs.StringVar(&version, "version", "", "version label")
	fs.StringVar(&state, "state", "", "ENABLED, DEPRECATED or DISABLED")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := coords.require(); err != nil {
		return nil, err
	}
	if version == "" {
		return nil, usageError("--version is required")
	}
	s := types.ArtifactState(strings.ToUpper(state))
	if !s.Valid() {
		return nil, usageError("--state must be ENABLED, DEPRECATED or DISABLED")
	}

	return func(ctx context.Context, e env) (interface{}, error) {
		group := groupOrDefault(coords.group)
		if err := e.Store.UpdateArtifactVersionState(ctx, group, coords.artifact, version, s); err != nil {
			return nil, err
		}
		return stateResult{GroupID: group, ArtifactID: coords.artifact, Version: version, State: s}, nil
	}, nil
}

type ruleResult struct {
	Scope   string         `json:"scope"`
	Type    types.RuleType `json:"type"`
	Config  string         `json:"config,omitempty"`
	Deleted bool           `json:"deleted,omitempty"`
}

func parseSetRule(args []string) (action, error) {
	var (
		coords   coordinates
		ruleType string
		config   string
		remove   bool
	)
	fs := newFlagSet("set-rule")
	coords.addFlags(fs)
	fs.StringVar(&ruleType, "rule", "", "VALIDITY, COMPATIBILITY or INTEGRITY")
	fs.StringVar(&config, "config", "", "rule configuration, e.g. FULL or BACKWARD")
	fs.BoolVar(&remove, "delete", false, "delete the rule instead of setting it")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if ruleType == "" {
		return nil, usageError("--rule is required")
	}
	if !remove && config == "" {
		return nil, usageError("--config is required unless --delete is given")
	}
	rt := types.RuleType(strings.ToUpper(ruleType))
	cfg := strings.ToUpper(config)

	return func(ctx context.Context, e env) (interface{}, error) {
		res := ruleResult{Scope: "global", Type: rt, Config: cfg, Deleted: remove}
		if coords.artifact == "" {
			if remove {
				return res, e.Store.DeleteGlobalRule(ctx, rt)
			}
			return res, e.Store.SetGlobalRule(ctx, storage.RuleConfig{Type: rt, Configuration: cfg})
		}

		group := groupOrDefault(coords.group)
		res.Scope = group + "/" + coords.artifact
		if remove {
			return res, e.Store.DeleteArtifactRule(ctx, group, coords.artifact, rt)
		}
		return res, e.Store.SetArtifactRule(ctx, group, coords.artifact, storage.RuleConfig{Type: rt, Configuration: cfg})
	}, nil
}
