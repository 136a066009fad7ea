package session

import "testing"

func TestCredentials(t *testing.T) {
	tests := []struct {
		name   string
		room   string
		userID string
		wantOK bool
	}{
		{name: "both set", room: "demo", userID: "U1", wantOK: true},
		{name: "missing room", room: "", userID: "U1", wantOK: false},
		{name: "missing user", room: "demo", userID: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewIdentity()
			id.Set(tt.room, tt.userID)

			room, user, ok := id.Credentials()
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if room != tt.room || user != tt.userID {
				t.Errorf("got (%q, %q), want (%q, %q)", room, user, tt.room, tt.userID)
			}
		})
	}
}

func TestClearKeepsStatus(t *testing.T) {
	id := NewIdentity()
	id.Set("demo", "U1")
	id.SetStatus(Connected)

	id.Clear()

	if _, _, ok := id.Credentials(); ok {
		t.Error("credentials should be cleared")
	}
	if id.Status() != Connected {
		t.Errorf("status = %v, want connected", id.Status())
	}
}

func TestStatusString(t *testing.T) {
	if Disconnected.String() != "disconnected" || Connecting.String() != "connecting" || Connected.String() != "connected" {
		t.Error("unexpected status names")
	}
}
