package frontmatter

import (
	"errors"
	"testing"

	"github.com/starford/raido/internal/apperr"
)

func TestParse_AllFields(t *testing.T) {
	input := []byte("---\ntitle: Hello\ndate: 03/14/2024\ntime_to_read: 5 min\nstyles:\n  - gallery\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Front.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Front.Title, "Hello")
	}
	if r.Front.Date == nil || r.Front.Date.Format("2006-01-02") != "2024-03-14" {
		t.Errorf("date = %v, want 2024-03-14", r.Front.Date)
	}
	if r.Front.TimeToRead == nil || *r.Front.TimeToRead != "5 min" {
		t.Errorf("time_to_read = %v", r.Front.TimeToRead)
	}
	if len(r.Front.Styles) != 1 || r.Front.Styles[0] != "gallery" {
		t.Errorf("styles = %v", r.Front.Styles)
	}
	if string(r.Body) != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NullMarkerEqualsAbsent(t *testing.T) {
	withNull, err := Parse([]byte("---\ntitle: A\ndate: ~\ntime_to_read: null\n---\nx\n"))
	if err != nil {
		t.Fatalf("null marker should be accepted: %v", err)
	}
	absent, err := Parse([]byte("---\ntitle: A\n---\nx\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withNull.Front.Date != nil || absent.Front.Date != nil {
		t.Error("date should be absent in both cases")
	}
	if withNull.Front.TimeToRead != nil || absent.Front.TimeToRead != nil {
		t.Error("time_to_read should be absent in both cases")
	}
}

func TestParse_CRLF(t *testing.T) {
	r, err := Parse([]byte("---\r\ntitle: Windows\r\n---\r\nbody\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Front.Title != "Windows" {
		t.Errorf("title = %q", r.Front.Title)
	}
	if string(r.Body) != "body\r\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_MissingBlock(t *testing.T) {
	_, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if !errors.Is(err, apperr.ErrMissingFrontMatter) {
		t.Fatalf("err = %v, want ErrMissingFrontMatter", err)
	}
}

func TestParse_UnclosedBlock(t *testing.T) {
	_, err := Parse([]byte("---\ntitle: Open\nbody without close\n"))
	if !errors.Is(err, apperr.ErrMissingFrontMatter) {
		t.Fatalf("err = %v, want ErrMissingFrontMatter", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if !errors.Is(err, apperr.ErrInvalidFrontMatter) {
		t.Fatalf("err = %v, want ErrInvalidFrontMatter", err)
	}
}

func TestParse_NotAMapping(t *testing.T) {
	_, err := Parse([]byte("---\n- a\n- b\n---\nBody\n"))
	if !errors.Is(err, apperr.ErrInvalidFrontMatter) {
		t.Fatalf("err = %v, want ErrInvalidFrontMatter", err)
	}
}

func TestParse_MissingTitle(t *testing.T) {
	_, err := Parse([]byte("---\ndate: 01/02/2024\n---\nBody\n"))
	if !errors.Is(err, apperr.ErrInvalidFrontMatter) {
		t.Fatalf("err = %v, want ErrInvalidFrontMatter", err)
	}
}

func TestParse_BadDate(t *testing.T) {
	_, err := Parse([]byte("---\ntitle: T\ndate: 2024-01-02\n---\nBody\n"))
	if !errors.Is(err, apperr.ErrInvalidFrontMatter) {
		t.Fatalf("err = %v, want ErrInvalidFrontMatter", err)
	}
}

func TestParseOptional_NoBlock(t *testing.T) {
	input := []byte("[hidden](page:hidden)\n")
	r, err := ParseOptional(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(r.Body) != string(input) {
		t.Errorf("body = %q", r.Body)
	}
	if r.Front.Title != "" {
		t.Errorf("title = %q, want empty", r.Front.Title)
	}
}

func TestParseOptional_InvalidBlockStillFails(t *testing.T) {
	_, err := ParseOptional([]byte("---\n- a\n---\nx\n"))
	if !errors.Is(err, apperr.ErrInvalidFrontMatter) {
		t.Fatalf("err = %v, want ErrInvalidFrontMatter", err)
	}
}
