package checksum

import "testing"

func TestSum_Known(t *testing.T) {
	got := Sum([]byte(""))
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("Sum(\"\") = %q, want %q", got, want)
	}
}

func TestShort_PrefixOfSum(t *testing.T) {
	for _, in := range []string{"", "https://example.com", "https://example.com/a?b=c"} {
		s := Short(in)
		if len(s) != ShortLen {
			t.Errorf("len(Short(%q)) = %d", in, len(s))
		}
		if full := Sum([]byte(in)); full[:ShortLen] != s {
			t.Errorf("Short(%q) = %q, not a prefix of %q", in, s, full)
		}
	}
}
