package certid

import "testing"

func TestCorrect(t *testing.T) {
	got := Correct("Bob is lOst")
	if got != "808 15 L05T" {
		t.Fatalf("Correct = %q", got)
	}
}

func TestFindStructured(t *testing.T) {
	cases := []struct {
		text, want string
	}{
		{"Certificate No: JH2020ECE002 issued", "JH2020ECE002"},
		{"zz9999zz9999", "ZZ9999ZZ9999"},
		{"id fake123 here", "FAKE123"},
		// leftmost of several structured tokens
		{"AC1234CD1 and XY5678ZZ2", "AC1234CD1"},
		// O read for zero in the year is repaired
		{"JH2O2OECE002", "JH2020ECE002"},
	}
	for _, c := range cases {
		got, ok := Find(c.text)
		if !ok || got.ID != c.want || got.Strategy != "structured" {
			t.Fatalf("Find(%q) = %+v,%v want %q structured", c.text, got, ok, c.want)
		}
	}
}

func TestFindBlindCorrectionBreaksStructure(t *testing.T) {
	// S becomes 5, leaving a single letter where two are required
	got, ok := Find("JH2021CSE001")
	if !ok || got.ID != "JH2021C5E001" || got.Strategy != "fallback" {
		t.Fatalf("Find = %+v,%v", got, ok)
	}
}

func TestFindFallbackFirstRun(t *testing.T) {
	got, ok := Find("no id: ACD123XYZ then QWERTY9876")
	if !ok || got.ID != "ACD123XYZ" || got.Strategy != "fallback" {
		t.Fatalf("Find = %+v,%v", got, ok)
	}
	long, ok := Find("ABCDEFGHJKMNPQRTUVWXYZ")
	if !ok || long.ID != "A8CDEFGHJKMNPQRTUVWX" {
		t.Fatalf("runs are capped at 20 characters, got %+v", long)
	}
}

func TestFindAbsent(t *testing.T) {
	for _, text := range []string{"", "   ", "abc de", "12345", "--- ..."} {
		if got, ok := Find(text); ok {
			t.Fatalf("Find(%q) = %+v, want absent", text, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"jh-2021 cse/001": "JH2021CSE001",
		"  ":              "",
		"Äb9":             "B9",
		"FAKE_42":         "FAKE42",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "jh-2021-cse-001", "ÄÖÜ ß x", "\x00\xff abc", "ZZ9999ZZ9999", "a b\tc\nd"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}
