package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cvalue-web/internal/render/rendertest"
)

func TestRunWritesPageImages(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "resume.pdf")
	if err := os.WriteFile(in, rendertest.PDF(3, 612, 792), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	outDir := filepath.Join(dir, "out")

	var stdout bytes.Buffer
	if err := run(context.Background(), &stdout, in, outDir, 2, 0.5); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read out dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 page images, got %d", len(entries))
	}
	first, err := os.ReadFile(filepath.Join(outDir, "resume_page_01.jpg"))
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if len(first) < 2 || first[0] != 0xFF || first[1] != 0xD8 {
		t.Fatalf("expected JPEG data")
	}
	if !strings.Contains(stdout.String(), "rendered 2 of 3 pages") {
		t.Fatalf("expected truncation note, got %q", stdout.String())
	}
}

func TestDecodeDataURLRejectsOtherSources(t *testing.T) {
	if _, err := decodeDataURL("https://example.com/page.jpg"); err == nil {
		t.Fatal("expected error for non data URL")
	}
}
