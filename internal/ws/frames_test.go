package ws

import "testing"

func TestFeedURL(t *testing.T) {
	tests := []struct {
		base  string
		token string
		want  string
	}{
		{"https://api.example.com", "tok", "wss://api.example.com/ws/messages/?token=tok"},
		{"http://localhost:8000/", "tok", "ws://localhost:8000/ws/messages/?token=tok"},
		{"https://x.ngrok-free.dev", "a b+c", "wss://x.ngrok-free.dev/ws/messages/?token=a+b%2Bc"},
	}
	for _, tt := range tests {
		if got := FeedURL(tt.base, tt.token); got != tt.want {
			t.Errorf("FeedURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
