package slots

import (
	"fmt"
	"sort"
	"strings"
)

// FormatInterval renders one interval label with its subtype annotation.
// A group with a single standard "Панорамик" subtype offered by at most one
// room renders as the bare interval; everything else gets a parenthetical
// with the subtype name and/or a pluralized court count.
func FormatInterval(interval string, byType map[string]map[string]struct{}) string {
	if len(byType) == 0 {
		return interval
	}

	if len(byType) == 1 {
		var subtype string
		var rooms map[string]struct{}
		for k, v := range byType {
			subtype, rooms = k, v
		}
		subtype = normalizeSubtypeLabel(subtype)
		count := len(rooms)
		lowered := strings.ToLower(subtype)
		if !strings.Contains(lowered, "ультра") && strings.HasPrefix(lowered, "панорамик") {
			if count <= 1 {
				return interval
			}
			return fmt.Sprintf("%s (%d %s)", interval, count, PluralizeCourts(count))
		}
		if count == 1 {
			return fmt.Sprintf("%s (%s)", interval, subtype)
		}
		return fmt.Sprintf("%s (%s — %d %s)", interval, subtype, count, PluralizeCourts(count))
	}

	subtypes := make([]string, 0, len(byType))
	for subtype := range byType {
		subtypes = append(subtypes, subtype)
	}
	sort.Strings(subtypes)

	parts := make([]string, 0, len(subtypes))
	for _, subtype := range subtypes {
		count := len(byType[subtype])
		label := normalizeSubtypeLabel(subtype)
		if count == 1 {
			parts = append(parts, label)
		} else {
			parts = append(parts, fmt.Sprintf("%s — %d %s", label, count, PluralizeCourts(count)))
		}
	}
	return fmt.Sprintf("%s (%s)", interval, strings.Join(parts, "; "))
}

// PluralizeCourts picks the Russian plural form of «корт» for a count,
// including the 11..14 exception.
func PluralizeCourts(count int) string {
	if count%10 == 1 && count%100 != 11 {
		return "корт"
	}
	switch count % 10 {
	case 2, 3, 4:
		if count%100 >= 12 && count%100 <= 14 {
			return "кортов"
		}
		return "корта"
	}
	return "кортов"
}

func normalizeSubtypeLabel(name string) string {
	cleaned := strings.TrimSpace(name)
	cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "."))
	if cleaned == "" {
		return name
	}
	return cleaned
}
