package project

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"collabbot/internal/domain"
)

// Codec converts a project to and from its persisted form.
type Codec interface {
	Marshal(p domain.Project) ([]byte, error)
	Unmarshal(data []byte) (domain.Project, error)
	Ext() string
}

func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return JSONCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown project record format %q", format)
	}
}

type JSONCodec struct{}

func (JSONCodec) Marshal(p domain.Project) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

func (JSONCodec) Unmarshal(data []byte) (domain.Project, error) {
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (JSONCodec) Ext() string { return "json" }

type YAMLCodec struct{}

func (YAMLCodec) Marshal(p domain.Project) ([]byte, error) {
	return yaml.Marshal(p)
}

func (YAMLCodec) Unmarshal(data []byte) (domain.Project, error) {
	var p domain.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (YAMLCodec) Ext() string { return "yaml" }
