package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Aleph-Alpha/schema-registry/v1/content"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

// coordinates are the flags every artifact command shares.
type coordinates struct {
	group    string
	artifact string
}

func (c *coordinates) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.group, "group", "g", "", "artifact group (default group when empty)")
	fs.StringVarP(&c.artifact, "artifact", "a", "", "artifact ID")
}

func (c *coordinates) require() error {
	if c.artifact == "" {
		return usageError("--artifact is required")
	}
	return nil
}

// contentFlags describe submitted schema content.
type contentFlags struct {
	file         string
	artifactType string
	refs         []string
}

func (c *contentFlags) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.file, "file", "f", "", "schema file, - for stdin")
	fs.StringVarP(&c.artifactType, "type", "t", "", "artifact type: AVRO, JSON or PROTOBUF")
	fs.StringArrayVarP(&c.refs, "ref", "r", nil, "reference as name=[group/]artifact@version, repeatable")
}

func (c *contentFlags) load() (content.Handle, []storage.ArtifactReference, error) {
	if c.file == "" {
		return content.Handle{}, nil, usageError("--file is required")
	}
	var (
		data []byte
		err  error
	)
	if c.file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(c.file)
	}
	if err != nil {
		return content.Handle{}, nil, fmt.Errorf("failed to read %s: %w", c.file, err)
	}
	refs, err := parseReferences(c.refs)
	if err != nil {
		return content.Handle{}, nil, err
	}
	return content.New(data), refs, nil
}

// parseReferences reads name=[group/]artifact@version declarations.
func parseReferences(values []string) ([]storage.ArtifactReference, error) {
	if len(values) == 0 {
		return nil, nil
	}
	refs := make([]storage.ArtifactReference, 0, len(values))
	for _, v := range values {
		name, target, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, usageError("reference %q: expected name=[group/]artifact@version", v)
		}
		coords, version, ok := strings.Cut(target, "@")
		if !ok || version == "" {
			return nil, usageError("reference %q: missing @version", v)
		}
		ref := storage.ArtifactReference{Name: name, Version: version}
		if group, artifact, found := strings.Cut(coords, "/"); found {
			ref.GroupID, ref.ArtifactID = group, artifact
		} else {
			ref.ArtifactID = coords
		}
		if ref.ArtifactID == "" {
			return nil, usageError("reference %q: missing artifact", v)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// parseProperties reads key=value pairs.
func parseProperties(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	props := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || k == "" {
			return nil, usageError("property %q: expected key=value", v)
		}
		props[k] = val
	}
	return props, nil
}
