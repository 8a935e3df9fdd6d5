package s3

import "testing"

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "audio/1.mp3", want: "audio/1.mp3"},
		{name: "simple prefix", prefix: "generations", key: "audio/1.mp3", want: "generations/audio/1.mp3"},
		{name: "prefix and key slashes", prefix: "/generations/", key: "/audio/1.mp3", want: "generations/audio/1.mp3"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestObjectURL(t *testing.T) {
	s := &Store{bucket: "media", region: "eu-west-1"}
	if got := s.objectURL("a/b.mp3"); got != "https://media.s3.eu-west-1.amazonaws.com/a/b.mp3" {
		t.Fatalf("unexpected url %q", got)
	}
	s.baseURL = "https://cdn.example.com"
	if got := s.objectURL("a/b.mp3"); got != "https://cdn.example.com/a/b.mp3" {
		t.Fatalf("unexpected url %q", got)
	}
}
