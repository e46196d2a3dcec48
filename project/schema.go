// ABOUTME: JSON contract checker: schema refs name field contracts enforced on produced documents.
// ABOUTME: Contracts declare required paths and expected types; checks report findings, never panic.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

// Contract is one document contract: paths that must exist and the JSON type
// each must carry. Paths use gjson syntax ("sections.0.title").
type Contract struct {
	Required []string          `json:"required"`
	Types    map[string]string `json:"types,omitempty"`
}

// DirChecker resolves schema refs to contract files under a directory and
// checks document content against them. A schema ref "discovery.v1" resolves
// to "<dir>/discovery.v1.json". Parsed contracts are cached.
type DirChecker struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Contract
}

// NewDirChecker creates a checker rooted at dir.
func NewDirChecker(dir string) *DirChecker {
	return &DirChecker{dir: dir, cache: make(map[string]*Contract)}
}

// Check validates content against the contract named by schemaRef. A non-nil
// error means the check itself could not run; contract violations come back
// as findings with a nil error.
func (c *DirChecker) Check(ctx context.Context, schemaRef string, content []byte) ([]engine.SchemaCheck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contract, err := c.contract(schemaRef)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(content) {
		return []engine.SchemaCheck{{Path: "$", Message: "content is not valid JSON"}}, nil
	}

	var findings []engine.SchemaCheck
	for _, path := range contract.Required {
		value := gjson.GetBytes(content, path)
		if !value.Exists() {
			findings = append(findings, engine.SchemaCheck{
				Path:    path,
				Message: "required field is missing",
			})
			continue
		}
		if want, ok := contract.Types[path]; ok {
			if got := jsonTypeName(value); got != want {
				findings = append(findings, engine.SchemaCheck{
					Path:    path,
					Message: fmt.Sprintf("expected %s, got %s", want, got),
				})
			}
		}
	}
	return findings, nil
}

// contract loads and caches the contract file for schemaRef.
func (c *DirChecker) contract(schemaRef string) (*Contract, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cache[schemaRef]; ok {
		return cached, nil
	}
	path := filepath.Join(c.dir, filepath.FromSlash(schemaRef)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load contract %q: %w", schemaRef, err)
	}
	var contract Contract
	if err := json.Unmarshal(data, &contract); err != nil {
		return nil, fmt.Errorf("parse contract %q: %w", schemaRef, err)
	}
	c.cache[schemaRef] = &contract
	return &contract, nil
}

// jsonTypeName maps a gjson value to a contract type name.
func jsonTypeName(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	case v.Type == gjson.String:
		return "string"
	case v.Type == gjson.Number:
		return "number"
	case v.Type == gjson.True || v.Type == gjson.False:
		return "bool"
	case v.Type == gjson.Null:
		return "null"
	default:
		return v.Type.String()
	}
}

var _ engine.ContractChecker = (*DirChecker)(nil)
