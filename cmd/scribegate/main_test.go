package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zen-systems/scribegate/pkg/config"
	"github.com/zen-systems/scribegate/pkg/pipeline"
	"github.com/zen-systems/scribegate/pkg/template"
	"github.com/zen-systems/scribegate/pkg/validate"
)

func TestCreateClientSelection(t *testing.T) {
	orig := clientFlag
	defer func() { clientFlag = orig }()

	clientFlag = ""
	if _, err := createClient(&config.Config{}); err == nil {
		t.Fatal("expected error when no key is configured and no client is named")
	}

	clientFlag = "mock"
	client, err := createClient(&config.Config{})
	if err != nil {
		t.Fatalf("mock client: %v", err)
	}
	if client.Name() != "mock" {
		t.Fatalf("expected mock client, got %s", client.Name())
	}

	clientFlag = "nope"
	if _, err := createClient(&config.Config{}); err == nil {
		t.Fatal("expected error for unknown client name")
	}

	clientFlag = ""
	client, err = createClient(&config.Config{DeepSeekAPIKey: "k"})
	if err != nil {
		t.Fatalf("auto-pick: %v", err)
	}
	if client.Name() != "deepseek" {
		t.Fatalf("expected deepseek to be auto-picked, got %s", client.Name())
	}
}

func TestReadTranscriptFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.txt")
	if err := os.WriteFile(path, []byte("Alice: hello"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := readTranscript([]string{path})
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if got != "Alice: hello" {
		t.Fatalf("unexpected transcript %q", got)
	}

	if _, err := readTranscript([]string{filepath.Join(t.TempDir(), "missing.txt")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPrintReport(t *testing.T) {
	catalog, err := template.Builtin()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	p, err := pipeline.Default()
	if err != nil {
		t.Fatalf("load pipeline: %v", err)
	}

	run := &pipeline.Run{ID: "r1", Status: pipeline.RunPartiallyFailed, Stages: map[string]*pipeline.StageResult{}}
	for _, stage := range p.Stages {
		run.Stages[stage.ID] = &pipeline.StageResult{StageID: stage.ID, Status: pipeline.StatusSkipped}
	}
	run.Stages["final-synthesis"] = &pipeline.StageResult{
		StageID:  "final-synthesis",
		Status:   pipeline.StatusSucceeded,
		Attempts: 1,
		Result: &validate.ParsedResult{
			Header: "Definition: A closing report.",
			Body:   "Executive Summary\nAll quiet.",
		},
	}

	var sb strings.Builder
	printReport(&sb, catalog, p, run)
	out := sb.String()

	if !strings.Contains(out, "run r1: partially_failed") {
		t.Fatalf("missing run line:\n%s", out)
	}
	for _, stage := range p.Stages {
		if !strings.Contains(out, stage.ID) {
			t.Fatalf("missing stage %s in report:\n%s", stage.ID, out)
		}
	}
	if !strings.Contains(out, "Executive Summary") {
		t.Fatalf("final synthesis body not printed:\n%s", out)
	}
}
