package recipe

import (
	"strings"
	"testing"

	"github.com/recipexec/engine/utils/rerrors"
)

func TestParseRejectsStepWithoutType(t *testing.T) {
	_, err := Parse([]byte(`{"steps":[{"config":{}}]}`))
	if rerrors.KindOf(err) != rerrors.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestParseAcceptsWellFormedRecipe(t *testing.T) {
	r, err := Parse([]byte(`{"steps":[{"type":"set_context","config":{}}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Steps) != 1 || r.Steps[0].Type != "set_context" {
		t.Fatalf("unexpected parse result: %+v", r)
	}
}

func TestFileSpecRenderedContentStringIsVerbatim(t *testing.T) {
	f := FileSpec{Path: "a.txt", Content: "hello\n"}
	data, err := f.RenderedContent()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestFileSpecRenderedContentNilIsEmpty(t *testing.T) {
	f := FileSpec{Path: "a.txt", Content: nil}
	data, err := f.RenderedContent()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty content, got %q", data)
	}
}

func TestFileSpecRenderedContentObjectIsIndentedJSON(t *testing.T) {
	f := FileSpec{Path: "a.json", Content: map[string]interface{}{"name": "ada"}}
	data, err := f.RenderedContent()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{\n  \"name\": \"ada\"\n}"
	if string(data) != want {
		t.Fatalf("unexpected content:\n%q\nwant:\n%q", data, want)
	}
}

func TestFileSpecRenderedContentDoesNotEscapeHTMLCharacters(t *testing.T) {
	f := FileSpec{Path: "a.json", Content: map[string]interface{}{"html": "<b>a & b</b>"}}
	data, err := f.RenderedContent()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(data), "u003c") || strings.Contains(string(data), "u0026") {
		t.Fatalf("expected <, >, & to round-trip unescaped, got %q", data)
	}
	if !strings.Contains(string(data), "<b>a & b</b>") {
		t.Fatalf("expected literal HTML characters in output, got %q", data)
	}
}

func TestMCPServerDescriptorValidateRejectsNeitherURLNorCommand(t *testing.T) {
	err := MCPServerDescriptor{}.Validate()
	if rerrors.KindOf(err) != rerrors.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestMCPServerDescriptorValidateRejectsBothURLAndCommand(t *testing.T) {
	err := MCPServerDescriptor{URL: "http://x", Command: "y"}.Validate()
	if rerrors.KindOf(err) != rerrors.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestMCPServerDescriptorIsStdio(t *testing.T) {
	if (MCPServerDescriptor{URL: "http://x"}).IsStdio() {
		t.Fatalf("expected URL-based descriptor to not be stdio")
	}
	if !(MCPServerDescriptor{Command: "echo"}).IsStdio() {
		t.Fatalf("expected command-based descriptor to be stdio")
	}
}
