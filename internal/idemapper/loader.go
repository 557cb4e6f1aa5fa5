package idemapper

import (
	"fmt"
	"os"
	"path/filepath"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

type mappingDoc struct {
	IDE             string                `yaml:"ide" json:"ide"`
	Tools           map[string]toolMapDoc `yaml:"tools" json:"tools"`
	BrowserTools    map[string]toolMapDoc `yaml:"browser_tools" json:"browser_tools"`
	PassthroughOnly []string              `yaml:"passthrough_only" json:"passthrough_only"`
}

type toolMapDoc struct {
	CanonicalName string            `yaml:"canonical_name" json:"canonical_name"`
	ParamRenames  map[string]string `yaml:"param_renames" json:"param_renames"`
	Transform     string            `yaml:"transform" json:"transform"`
}

// LoadMappingTable reads an IDE mapping document at
// <dataRoot>/ide-mappings/<ide>.json (or .yaml/.yml/.json5), mirroring
// the config package's extension-based format dispatch.
func LoadMappingTable(dataRoot string, ide IDE) (MappingTable, error) {
	dir := filepath.Join(dataRoot, "ide-mappings")
	for _, ext := range []string{".yaml", ".yml", ".json5", ".json"} {
		path := filepath.Join(dir, string(ide)+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return MappingTable{}, fmt.Errorf("reading ide mapping %s: %w", path, err)
		}
		var doc mappingDoc
		switch ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return MappingTable{}, fmt.Errorf("parsing ide mapping %s: %w", path, err)
			}
		default:
			if err := json5.Unmarshal(data, &doc); err != nil {
				return MappingTable{}, fmt.Errorf("parsing ide mapping %s: %w", path, err)
			}
		}
		return toMappingTable(ide, doc), nil
	}
	return MappingTable{IDE: ide, Tools: map[string]ToolMapping{}, BrowserTools: map[string]ToolMapping{}, PassthroughOnly: map[string]bool{}}, nil
}

func toMappingTable(ide IDE, doc mappingDoc) MappingTable {
	tools := toolMappings(doc.Tools)
	browserTools := toolMappings(doc.BrowserTools)
	passthrough := make(map[string]bool, len(doc.PassthroughOnly))
	for _, name := range doc.PassthroughOnly {
		passthrough[name] = true
	}
	return MappingTable{IDE: ide, Tools: tools, BrowserTools: browserTools, PassthroughOnly: passthrough}
}

func toolMappings(docs map[string]toolMapDoc) map[string]ToolMapping {
	mappings := make(map[string]ToolMapping, len(docs))
	for ideName, tm := range docs {
		var renames []ParamRename
		for from, to := range tm.ParamRenames {
			renames = append(renames, ParamRename{From: from, To: to})
		}
		mappings[ideName] = ToolMapping{CanonicalName: tm.CanonicalName, ParamRenames: renames, Transform: tm.Transform}
	}
	return mappings
}
