package parse

import "strings"

// GuestPrefix marks identities synthesized for unauthenticated roster entries.
const GuestPrefix = "guest-"

// IsGuestID reports whether id follows the guest naming convention.
func IsGuestID(id string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(id)), GuestPrefix)
}

// FilterGuests partitions ids into real and guest identities, preserving order.
// Blank ids are dropped and duplicates keep their first position.
func FilterGuests(ids []string) (real []string, guests []string) {
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if IsGuestID(id) {
			guests = append(guests, id)
		} else {
			real = append(real, id)
		}
	}
	return real, guests
}
