package noteparser

import (
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	raw := "---\ntype: decisions\nspec: proj-1\ntimestamp: 2024-01-01T00:00:00Z\nsummary: Use PostgreSQL\ntags: [db, backend]\n---\nWe chose postgres.\n"

	note, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note.Get("type") != "decisions" {
		t.Errorf("expected type decisions, got %q", note.Get("type"))
	}
	if note.Get("summary") != "Use PostgreSQL" {
		t.Errorf("expected summary preserved, got %q", note.Get("summary"))
	}
	tags := note.GetList("tags")
	if len(tags) != 2 || tags[0] != "db" || tags[1] != "backend" {
		t.Errorf("expected tags [db backend], got %v", tags)
	}
	if !strings.Contains(note.Body, "postgres") {
		t.Errorf("expected body to contain postgres, got %q", note.Body)
	}

	out, err := Serialize(note.FrontMatter, note.Body)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	again, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if again.Get("summary") != note.Get("summary") {
		t.Errorf("round trip mismatch: %q != %q", again.Get("summary"), note.Get("summary"))
	}
}

func TestParseMissingDelimiter(t *testing.T) {
	if _, err := Parse("type: decisions\nbody text"); err == nil {
		t.Fatal("expected error for missing front-matter delimiter")
	}
}

func TestValidateMissingFields(t *testing.T) {
	note, err := Parse("---\ntype: decisions\n---\nbody\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	missing := note.Validate()
	if len(missing) != 3 {
		t.Errorf("expected 3 missing fields, got %v", missing)
	}
}

func TestParseMultiSkipsMalformedBlock(t *testing.T) {
	raw := strings.Join([]string{
		"---",
		"type: decisions",
		"spec: p",
		"timestamp: 2024-01-01T00:00:00Z",
		"summary: good one",
		"---",
		"body one",
		"---",
		"type: [", // malformed middle block
		"---",
		"skipped body",
		"---",
		"type: learnings",
		"spec: p",
		"timestamp: 2024-01-02T00:00:00Z",
		"summary: good two",
		"---",
		"body two",
	}, "\n")

	notes := ParseMulti(raw)
	if len(notes) != 2 {
		t.Fatalf("expected 2 recovered notes, got %d", len(notes))
	}
	if notes[0].Get("summary") != "good one" || notes[1].Get("summary") != "good two" {
		t.Errorf("unexpected recovered notes: %q, %q", notes[0].Get("summary"), notes[1].Get("summary"))
	}
}
