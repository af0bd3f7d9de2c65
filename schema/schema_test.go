package schema

import (
	"strings"
	"testing"
)

func TestNewAndLookup(t *testing.T) {
	d := New(Entity{
		Name: "todos",
		Fields: []Field{
			{Name: "title", Type: String},
			{Name: "done", Type: Boolean},
		},
	})

	if !d.Known("todos") {
		t.Fatal("expected todos to be known")
	}
	if d.Known("users") {
		t.Fatal("expected users to be unknown")
	}

	e, ok := d.Entity("todos")
	if !ok {
		t.Fatal("expected to find todos entity")
	}
	f, ok := e.Field("done")
	if !ok || f.Type != Boolean {
		t.Fatalf("expected done field of type boolean, got %+v ok=%v", f, ok)
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
entities:
  - name: todos
    fields:
      - name: title
        type: string
      - name: done
        type: boolean
      - name: priority
        type: enum
        values: ["low", "high"]
        optional: true
`
	d, err := LoadYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadYAML error: %v", err)
	}
	if !d.Known("todos") {
		t.Fatal("expected todos entity after yaml load")
	}
	e, _ := d.Entity("todos")
	f, ok := e.Field("priority")
	if !ok || f.Type != Enum || !f.Optional || len(f.Values) != 2 {
		t.Fatalf("unexpected priority field: %+v", f)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("entities: [this is not, valid: yaml: at all"))
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
