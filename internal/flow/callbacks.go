package flow

import "strings"

// OwnsCallback reports whether callback data belongs to a wizard. The shared
// navigation callbacks always do; beyond those, entries ending in ":" match
// as prefixes and the rest match exactly. A tap on another feature's
// keyboard must stay unclaimed so the dispatch chain can route it.
func OwnsCallback(data string, own ...string) bool {
	if data == CallbackCancel || data == CallbackBack {
		return true
	}

	for _, o := range own {
		if o == "" {
			continue
		}
		if strings.HasSuffix(o, ":") {
			if strings.HasPrefix(data, o) {
				return true
			}
			continue
		}
		if data == o {
			return true
		}
	}
	return false
}
