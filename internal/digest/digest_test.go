package digest

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashIgnoresWhitespace(t *testing.T) {
	cases := []struct {
		a, b string
	}{
		{"func add(a, b int) int { return a + b }", "func add(a,b int)int{return a+b}"},
		{"x := 1\ny := 2\n", "x := 1\r\n\ty := 2"},
		{"  leading", "leading  "},
		{"", "   \n\t  "},
	}
	for _, c := range cases {
		if Hash(c.a) != Hash(c.b) {
			t.Errorf("expected equal digests for %q and %q", c.a, c.b)
		}
	}
}

func TestHashDiffersOnContent(t *testing.T) {
	a := "return a + b"
	b := "return a - b"
	if Hash(a) == Hash(b) {
		t.Errorf("expected different digests for %q and %q", a, b)
	}
}

func TestHashRandomizedMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := "func calculate(values []float64) float64 { total := 0.0; for _, v := range values { total += v }; return total / float64(len(values)) }"

	for i := 0; i < 200; i++ {
		// Mutate one non-whitespace byte.
		b := []byte(base)
		pos := rng.Intn(len(b))
		for b[pos] == ' ' {
			pos = rng.Intn(len(b))
		}
		b[pos] = byte('a' + rng.Intn(26))
		mutated := string(b)
		if Normalize(mutated) == Normalize(base) {
			continue // mutation landed on the same byte value
		}
		if Hash(mutated) == Hash(base) {
			t.Fatalf("digest collision for mutation %q", mutated)
		}
	}
}

func TestHashStableAcrossCalls(t *testing.T) {
	text := "some protected block"
	if Hash(text) != Hash(text) {
		t.Fatal("digest is not deterministic")
	}
	if len(Hash(text)) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(Hash(text)))
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.go")
	content := "package main\n\nfunc main() {}\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Hash(content) {
		t.Errorf("file digest %s does not match content digest", got)
	}
}

func TestHashFileUnreadable(t *testing.T) {
	got, err := HashFile(filepath.Join(t.TempDir(), "missing.go"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if got != Unknown {
		t.Errorf("expected sentinel %q, got %q", Unknown, got)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(" a\tb\nc\r\nd ")
	if got != "abcd" {
		t.Errorf("expected abcd, got %q", got)
	}
	if strings.ContainsAny(Normalize("x  y z"), "  ") {
		t.Error("unicode space survived normalization")
	}
}
