package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestChatSession(t *testing.T) {
	root := t.TempDir()
	processed := filepath.Join(root, "processed")
	if err := os.MkdirAll(processed, 0755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"soto_betawi.txt": "soto betawi daging santan",
		"rendang.txt":     "rendang daging santan pedas",
		"es_cendol.txt":   "es cendol gula merah",
	} {
		if err := os.WriteFile(filepath.Join(processed, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	cfgPath := filepath.Join(root, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf("corpus:\n  processedDir: %s\n  rawDir: \"\"\n", processed)), 0644); err != nil {
		t.Fatal(err)
	}

	stdin := strings.NewReader("Soto Betawi?\n\nkerupuk\nexit\n")
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--config", cfgPath, "--model", "bm25"}, stdin, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"Loaded 3 documents",
		"**Soto Betawi**",
		" - soto_betawi.txt (score=",
		"Sorry, I could not find anything",
		"Bot: Goodbye!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
