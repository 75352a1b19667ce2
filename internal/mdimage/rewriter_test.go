package mdimage

import (
	"reflect"
	"testing"
)

func TestExtractOrderedURLs(t *testing.T) {
	md := "intro\n![first](https://cdn.example/a.jpg)\ntext\n![second](https://cdn.example/b.png \"title\")\n"
	got := Extract(md)
	want := []string{"https://cdn.example/a.jpg", "https://cdn.example/b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %v, want %v", got, want)
	}
}

func TestRewriteKnownAndUnknown(t *testing.T) {
	md := "![a](https://cdn.example/a.jpg) and ![b](https://cdn.example/b.jpg)"
	m := map[string]string{"https://cdn.example/a.jpg": "https://blob.example/hash-a"}
	got := Rewrite(md, m)
	want := "![a](https://blob.example/hash-a) and ![b](https://cdn.example/b.jpg)"
	if got != want {
		t.Errorf("Rewrite() = %q, want %q", got, want)
	}
}

func TestRewritePreservesStructure(t *testing.T) {
	md := "# Title\n\nSome *text* with a [link](https://example.com/page) and ![img](https://cdn.example/x.jpg).\n"
	m := map[string]string{"https://cdn.example/x.jpg": "https://blob.example/x"}
	got := Rewrite(md, m)
	if got == md {
		t.Fatal("expected rewrite to change the image URL")
	}
	want := "# Title\n\nSome *text* with a [link](https://example.com/page) and ![img](https://blob.example/x).\n"
	if got != want {
		t.Errorf("Rewrite() = %q, want %q", got, want)
	}
}

func TestRewriteIdempotent(t *testing.T) {
	md := "![a](https://cdn.example/a.jpg)"
	m := map[string]string{"https://cdn.example/a.jpg": "https://blob.example/a"}
	once := Rewrite(md, m)
	twice := Rewrite(once, m)
	if once != twice {
		t.Errorf("Rewrite not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestRewriteEmptyMap(t *testing.T) {
	md := "![a](https://cdn.example/a.jpg)"
	if got := Rewrite(md, nil); got != md {
		t.Errorf("Rewrite with empty map changed markdown: %q", got)
	}
}
