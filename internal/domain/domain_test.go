package domain

import "testing"

func TestValidateSessionID(t *testing.T) {
	for _, tc := range []struct {
		id string
		ok bool
	}{
		{"class-42", true},
		{"3f1c2a9e-0000-4000-8000-000000000000", true},
		{"", false},
		{"..", false},
		{".", false},
		{"a/b", false},
		{`a\b`, false},
		{"a\x00b", false},
		{"a\nb", false},
		{"a\rb", false},
		{"tab\tid", false},
		{"class\x7f", false},
	} {
		err := ValidateSessionID(tc.id)
		if (err == nil) != tc.ok {
			t.Errorf("ValidateSessionID(%q) = %v, want ok=%v", tc.id, err, tc.ok)
		}
	}
}

func TestParseMediaKind(t *testing.T) {
	if k, err := ParseMediaKind("audio"); err != nil || k != MediaAudio {
		t.Fatalf("ParseMediaKind(audio) = %q, %v", k, err)
	}
	if k, err := ParseMediaKind("video"); err != nil || k != MediaVideo {
		t.Fatalf("ParseMediaKind(video) = %q, %v", k, err)
	}
	if _, err := ParseMediaKind("screen"); err == nil {
		t.Fatal("ParseMediaKind(screen) should fail")
	}
}

func TestNewUser(t *testing.T) {
	if _, err := NewUser(""); err != ErrUserIDEmpty {
		t.Fatalf("NewUser empty: got %v", err)
	}
	long := make([]byte, MaxUserIDLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := NewUser(string(long)); err != ErrUserIDTooLong {
		t.Fatalf("NewUser long: got %v", err)
	}
	u, err := NewUser("teacher-1")
	if err != nil || u.ID != "teacher-1" {
		t.Fatalf("NewUser: %+v, %v", u, err)
	}
}
