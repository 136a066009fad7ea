package hotkey

import (
	"testing"

	"markestedt/clipsync/platform"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		combo   string
		want    platform.KeyCombo
		wantErr bool
	}{
		{name: "ctrl alt digit", combo: "ctrl+alt+1", want: platform.KeyCombo{Ctrl: true, Alt: true, Key: "1"}},
		{name: "original spelling", combo: "Control+Alt+J", want: platform.KeyCombo{Ctrl: true, Alt: true, Key: "j"}},
		{name: "spaces and order", combo: " Shift + Ctrl + K ", want: platform.KeyCombo{Ctrl: true, Shift: true, Key: "k"}},
		{name: "super", combo: "Super+F5", want: platform.KeyCombo{Win: true, Key: "f5"}},
		{name: "browser key codes", combo: "Alt+Digit2", want: platform.KeyCombo{Alt: true, Key: "2"}},
		{name: "key prefix", combo: "Alt+KeyQ", want: platform.KeyCombo{Alt: true, Key: "q"}},
		{name: "empty", combo: "", wantErr: true},
		{name: "modifier only", combo: "ctrl+shift", wantErr: true},
		{name: "no modifier", combo: "j", wantErr: true},
		{name: "unknown modifier", combo: "hyper+j", wantErr: true},
		{name: "dangling plus", combo: "ctrl+", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.combo)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q) expected error, got %+v", tt.combo, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.combo, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.combo, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"ctrl+alt+1":       "Ctrl+Alt+1",
		"alt+control+j":    "Ctrl+Alt+J",
		"shift+super+f12":  "Shift+Win+F12",
		"Ctrl+Shift+Space": "Ctrl+Shift+Space",
	}

	for in, want := range tests {
		got, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
