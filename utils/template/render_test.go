package template

import "testing"

func TestRenderVariableSubstitution(t *testing.T) {
	out, err := Render("Generate: {{ spec }}", map[string]interface{}{"spec": "print hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Generate: print hello" {
		t.Errorf("got %q", out)
	}
}

func TestRenderIfElse(t *testing.T) {
	tpl := "{% if ready %}true{% else %}false{% endif %}"
	out, err := Render(tpl, map[string]interface{}{"ready": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "true" {
		t.Errorf("got %q, want %q", out, "true")
	}

	out, err = Render(tpl, map[string]interface{}{"ready": false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "false" {
		t.Errorf("got %q, want %q", out, "false")
	}
}

func TestRenderForLoop(t *testing.T) {
	out, err := Render("{% for x in xs %}{{ x }},{% endfor %}", map[string]interface{}{"xs": []interface{}{1, 2, 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "1,2,3," {
		t.Errorf("got %q", out)
	}
}

func TestRawBlockSuppressesRendering(t *testing.T) {
	tpl := "{% raw %}{{ not_rendered }}{% endraw %}"
	out, err := Render(tpl, map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{{ not_rendered }}" {
		t.Errorf("got %q, want raw block verbatim", out)
	}
}

func TestRawBlockSurvivesNestedRender(t *testing.T) {
	tpl := "{{ outer }}{% raw %}{{ inner }}{% endraw %}"
	out, err := RenderNested(tpl, map[string]interface{}{"outer": "{{ inner }}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// outer renders to "{{ inner }}", which the next pass renders to ""
	// (inner is undefined); only the raw span survives verbatim.
	if out != "{{ inner }}" {
		t.Errorf("got %q", out)
	}
}

func TestSnakecaseFilter(t *testing.T) {
	out, err := Render("{{ s|snakecase }}", map[string]interface{}{"s": "Hello World!!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello_world" {
		t.Errorf("got %q, want %q", out, "hello_world")
	}
}

func TestJSONFilter(t *testing.T) {
	out, err := Render("{{ v|json }}", map[string]interface{}{"v": map[string]interface{}{"n": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"n":1}` {
		t.Errorf("got %q", out)
	}
}

func TestJSONFilterWithIndent(t *testing.T) {
	out, err := Render("{{ v|json:2 }}", map[string]interface{}{"v": map[string]interface{}{"n": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "{\n  \"n\": 1\n}"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestDefaultFilter(t *testing.T) {
	out, err := Render("{{ missing|default:\"fallback\" }}", map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "fallback" {
		t.Errorf("got %q", out)
	}
}

func TestDatetimeNamedFormat(t *testing.T) {
	out, err := Render("{{ t|datetime:\"medium\" }}", map[string]interface{}{"t": "2026-03-05T00:00:00Z"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Mar 5, 2026" {
		t.Errorf("got %q", out)
	}
}

func TestRenderNestedTerminatesWhenUnchanged(t *testing.T) {
	out, err := RenderNested("plain text, no tags", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "plain text, no tags" {
		t.Errorf("got %q", out)
	}
}

func TestRenderNestedResolvesIndirection(t *testing.T) {
	vars := map[string]interface{}{
		"a": "{{ b }}",
		"b": "final",
	}
	out, err := RenderNested("{{ a }}", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "final" {
		t.Errorf("got %q, want %q", out, "final")
	}
}
