package integration

import (
	"os"
	"path/filepath"
	"testing"
)

// fixtureFiles is a small but representative knowledge repository: every
// chunking strategy is exercised, one file is excluded by configuration,
// and one file is binary.
var fixtureFiles = map[string]string{
	"kbcontext.yaml": `name: field-ops-kb

sources:
  - pattern: "kb/**/*.md"
    category: knowledge
  - pattern: "contracts/**"
    category: contract

exclude:
  - "archive/**"
`,

	"glossary.md": `# Glossary

**SLA**: Service Level Agreement, the uptime promise made to customers.

**RCA**: Root Cause Analysis, written after every sev-1 incident.

**MTTR**: Mean Time To Repair, tracked per quarter for every crew.
`,

	"docs/runbook.md": `# Dispatch Runbook

Operational notes for the dispatch service.

## Restarts

Restart the worker pool before the dispatcher. A dispatcher restarted
first drains its queue into the void.

## Escalation

Page the on-call lead after two failed restarts. Escalation past the
lead goes through the duty manager.
`,

	"kb/dispatch.md": `# Dispatch Flow

## Intake

New requests are triaged by zone and severity before entering the queue.

## Assignment

The scheduler assigns the nearest available crew and records the decision.
`,

	"contracts/api.ts": `export interface JobTicket {
  id: string;
  zone: string;
  severity: number;
  openedAt: string;
}

export function ticketKey(ticket: JobTicket): string {
  return ` + "`${ticket.zone}:${ticket.id}`" + `;
}
`,

	"tools/cleanup.go": `package tools

// PurgeClosed removes tickets that stayed closed past the retention window.
func PurgeClosed(retentionDays int) int {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return retentionDays
}
`,

	"notes.txt": `Field crews file their paperwork at the end of every shift.

Paper copies go to the zone office for archiving.
`,

	"archive/old.md": `# Old Notes

Stale content that must never be indexed.
`,
}

// fixtureCandidates is the number of files the walker considers: everything
// above except kbcontext.yaml (never indexed) and archive/old.md (excluded),
// plus the binary logo.png written separately.
const fixtureCandidates = 7

// writeFixtureRepo materializes the fixture repository in a temp directory
// and returns its root path.
func writeFixtureRepo(tb testing.TB) string {
	tb.Helper()

	root := tb.TempDir()
	for name, content := range fixtureFiles {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}

	// A PNG header is enough for content sniffing to reject the file.
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	if err := os.WriteFile(filepath.Join(root, "logo.png"), png, 0644); err != nil {
		tb.Fatalf("write logo.png: %v", err)
	}

	return root
}
