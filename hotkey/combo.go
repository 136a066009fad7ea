// Package hotkey maps key combinations to sync actions and keeps them
// registered with the OS hotkey facility.
package hotkey

import (
	"fmt"
	"strings"

	"markestedt/clipsync/platform"
)

// Parse parses a combo string like "ctrl+alt+1" or "Control+Shift+K".
// Modifiers may come in any order; the key must be last.
func Parse(combo string) (platform.KeyCombo, error) {
	var kc platform.KeyCombo
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return kc, fmt.Errorf("empty hotkey combo")
	}

	parts := strings.Split(strings.ToLower(combo), "+")
	for i, part := range parts {
		part = strings.TrimSpace(part)

		switch part {
		case "ctrl", "control", "cmdorctrl", "commandorcontrol":
			kc.Ctrl = true
			continue
		case "shift":
			kc.Shift = true
			continue
		case "alt", "option":
			kc.Alt = true
			continue
		case "win", "windows", "super", "meta", "cmd", "command":
			kc.Win = true
			continue
		case "":
			return kc, fmt.Errorf("empty key in combo %q", combo)
		}

		if i != len(parts)-1 {
			return kc, fmt.Errorf("unknown modifier: %s", part)
		}
		kc.Key = normalizeKey(part)
	}

	if kc.Key == "" {
		return kc, fmt.Errorf("no key specified in combo %q", combo)
	}
	if !kc.Ctrl && !kc.Shift && !kc.Alt && !kc.Win {
		return kc, fmt.Errorf("no modifiers specified in combo %q", combo)
	}

	return kc, nil
}

// Normalize returns the canonical spelling of combo
func Normalize(combo string) (string, error) {
	kc, err := Parse(combo)
	if err != nil {
		return "", err
	}
	return kc.String(), nil
}

func normalizeKey(key string) string {
	switch key {
	case "digit0", "digit1", "digit2", "digit3", "digit4",
		"digit5", "digit6", "digit7", "digit8", "digit9":
		return strings.TrimPrefix(key, "digit")
	case "escape":
		return "esc"
	case "return":
		return "enter"
	}
	if len(key) == 4 && strings.HasPrefix(key, "key") {
		return key[3:]
	}
	return key
}
