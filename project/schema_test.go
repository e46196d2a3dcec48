// ABOUTME: Tests for the directory-backed JSON contract checker.
// ABOUTME: Covers missing fields, type mismatches, invalid JSON, and unknown contract refs.
package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeContract(t *testing.T, dir, ref, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ref+".json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckPassesConformingDocument(t *testing.T) {
	dir := t.TempDir()
	writeContract(t, dir, "discovery.v1",
		`{"required": ["title", "sections"], "types": {"title": "string", "sections": "array"}}`)

	c := NewDirChecker(dir)
	findings, err := c.Check(context.Background(), "discovery.v1",
		[]byte(`{"title": "Discovery", "sections": [{"heading": "Scope"}]}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("findings = %v, want none", findings)
	}
}

func TestCheckReportsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	writeContract(t, dir, "discovery.v1", `{"required": ["title", "sections"]}`)

	c := NewDirChecker(dir)
	findings, err := c.Check(context.Background(), "discovery.v1", []byte(`{"title": "only"}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(findings) != 1 || findings[0].Path != "sections" {
		t.Errorf("findings = %v, want one for sections", findings)
	}
}

func TestCheckReportsTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	writeContract(t, dir, "plan.v1",
		`{"required": ["milestones"], "types": {"milestones": "array"}}`)

	c := NewDirChecker(dir)
	findings, err := c.Check(context.Background(), "plan.v1", []byte(`{"milestones": "not a list"}`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("findings = %v, want exactly one", findings)
	}
}

func TestCheckRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeContract(t, dir, "plan.v1", `{"required": ["milestones"]}`)

	c := NewDirChecker(dir)
	findings, err := c.Check(context.Background(), "plan.v1", []byte(`{{{not json`))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(findings) != 1 || findings[0].Path != "$" {
		t.Errorf("findings = %v, want one root finding", findings)
	}
}

func TestCheckUnknownContractRef(t *testing.T) {
	c := NewDirChecker(t.TempDir())
	if _, err := c.Check(context.Background(), "nope.v1", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown contract ref")
	}
}
