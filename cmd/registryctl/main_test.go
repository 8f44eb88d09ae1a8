package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/schema-registry/v1/artifacttype"
	"github.com/Aleph-Alpha/schema-registry/v1/logger"
	"github.com/Aleph-Alpha/schema-registry/v1/references"
	"github.com/Aleph-Alpha/schema-registry/v1/registry"
	"github.com/Aleph-Alpha/schema-registry/v1/rules"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
	"github.com/Aleph-Alpha/schema-registry/v1/types"
)

const userV1 = `{"type":"record","name":"User","fields":[{"name":"id","type":"long"}]}`

// userV2 adds a field without a default, which old data cannot satisfy.
const userV2 = `{"type":"record","name":"User","fields":[{"name":"id","type":"long"},{"name":"email","type":"string"}]}`

func writeSchema(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.avsc")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestEnv() env {
	store := storage.NewMemoryStore()
	providers := artifacttype.NewDefaultFactory()
	resolver := references.NewResolver(store, 4)
	log := logger.NewNop()
	return env{
		Store: store,
		Registry: registry.New(registry.Config{}, registry.Deps{
			Store:     store,
			Providers: providers,
			Resolver:  resolver,
			Rules:     rules.NewService(rules.Config{}, store, providers, resolver, log),
			Logger:    log,
		}),
	}
}

// exec parses and runs one command against e.
func exec(t *testing.T, e env, args ...string) (interface{}, error) {
	t.Helper()
	cmd, ok := findCommand(args[0])
	require.True(t, ok, "unknown command %s", args[0])
	act, err := cmd.parse(args[1:])
	require.NoError(t, err)
	return act(context.Background(), e)
}

func TestCommands(t *testing.T) {
	e := newTestEnv()
	v1 := writeSchema(t, userV1)
	v2 := writeSchema(t, userV2)

	out, err := exec(t, e, "register", "-a", "user", "-f", v1, "--name", "User", "--property", "team=core")
	require.NoError(t, err)
	md := out.(*storage.VersionMetadata)
	assert.Equal(t, "1", md.Version)
	assert.Equal(t, storage.DefaultGroupID, md.GroupID)
	assert.Equal(t, types.Avro, md.ArtifactType)

	out, err = exec(t, e, "lookup", "-a", "user", "-f", v1)
	require.NoError(t, err)
	assert.Equal(t, md.GlobalID, out.(*storage.VersionMetadata).GlobalID)

	out, err = exec(t, e, "resolve-version", "-a", "user")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"version": "1"}, out)

	_, err = exec(t, e, "set-rule", "-a", "user", "--rule", "compatibility", "--config", "backward")
	require.NoError(t, err)
	exists, err := e.Registry.DoesArtifactRuleExist(context.Background(), "", "user", types.RuleCompatibility)
	require.NoError(t, err)
	assert.True(t, exists)

	out, err = exec(t, e, "compat", "-a", "user", "-f", v2)
	require.NoError(t, err)
	assert.False(t, out.(registry.CompatibilityResult).Compatible)

	_, err = exec(t, e, "register", "-a", "user", "-f", v2)
	require.Error(t, err)
	var buf bytes.Buffer
	assert.Equal(t, exitRejected, reportError(&buf, err))
	assert.Contains(t, buf.String(), `"kind": "CONFLICT"`)

	out, err = exec(t, e, "set-state", "-a", "user", "--version", "1", "--state", "disabled")
	require.NoError(t, err)
	assert.Equal(t, types.StateDisabled, out.(stateResult).State)

	out, err = exec(t, e, "is-active", "-a", "user", "--version", "1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"active": false}, out)

	_, err = exec(t, e, "set-rule", "--rule", "VALIDITY", "--config", "FULL")
	require.NoError(t, err)
	global, err := e.Registry.DoesGlobalRuleExist(context.Background(), types.RuleValidity)
	require.NoError(t, err)
	assert.True(t, global)

	_, err = exec(t, e, "set-rule", "--rule", "VALIDITY", "--delete")
	require.NoError(t, err)
	global, err = e.Registry.DoesGlobalRuleExist(context.Background(), types.RuleValidity)
	require.NoError(t, err)
	assert.False(t, global)

	_, err = exec(t, e, "resolve-version", "-a", "missing")
	require.Error(t, err)
	buf.Reset()
	assert.Equal(t, exitNotFound, reportError(&buf, err))
}

func TestParseErrors(t *testing.T) {
	schema := writeSchema(t, userV1)
	tests := []struct {
		name string
		args []string
	}{
		{"register without artifact", []string{"register", "-f", schema}},
		{"register without file", []string{"register", "-a", "x"}},
		{"bad reference", []string{"register", "-a", "x", "-f", schema, "--ref", "noequals"}},
		{"bad property", []string{"register", "-a", "x", "-f", schema, "--property", "novalue"}},
		{"unknown flag", []string{"lookup", "-a", "x", "--bogus"}},
		{"extra argument", []string{"is-active", "-a", "x", "surplus"}},
		{"set-state without version", []string{"set-state", "-a", "x", "--state", "ENABLED"}},
		{"set-state bad state", []string{"set-state", "-a", "x", "--version", "1", "--state", "GONE"}},
		{"set-rule without config", []string{"set-rule", "--rule", "VALIDITY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := findCommand(tt.args[0])
			require.True(t, ok)
			_, err := cmd.parse(tt.args[1:])
			require.Error(t, err)
			var buf bytes.Buffer
			assert.Equal(t, exitUsage, reportError(&buf, err))
		})
	}
}

func TestParseReferences(t *testing.T) {
	refs, err := parseReferences([]string{"c.avsc=shop/customer@2", "a.avsc=address@1"})
	require.NoError(t, err)
	assert.Equal(t, []storage.ArtifactReference{
		{Name: "c.avsc", GroupID: "shop", ArtifactID: "customer", Version: "2"},
		{Name: "a.avsc", ArtifactID: "address", Version: "1"},
	}, refs)

	for _, bad := range []string{"=x@1", "n=x", "n=x@", "n=shop/@1"} {
		_, err := parseReferences([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRun(t *testing.T) {
	t.Setenv("REGISTRY_CONFIG", "")
	noEnv := filepath.Join(t.TempDir(), "absent.env")

	t.Run("no command", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitUsage, run(context.Background(), nil, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "Commands:")
	})

	t.Run("help", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitOK, run(context.Background(), []string{"--help"}, &stdout, &stderr))
	})

	t.Run("unknown command", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, exitUsage, run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "unknown command")
	})

	t.Run("register against in-memory storage", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"--env-file", noEnv, "register", "-a", "user", "-f", writeSchema(t, userV1)}, &stdout, &stderr)
		require.Equal(t, exitOK, code, stderr.String())

		var md storage.VersionMetadata
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &md))
		assert.Equal(t, "1", md.Version)
		assert.Equal(t, "user", md.ArtifactID)
		assert.NotEmpty(t, md.ContentHash)
	})

	t.Run("missing config file", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), []string{"--config", "/nonexistent/registry.yaml", "--env-file", noEnv, "resolve-version", "-a", "x"}, &stdout, &stderr)
		assert.Equal(t, exitFailure, code)
	})
}
