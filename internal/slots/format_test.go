package slots

import "testing"

func roomSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func TestPluralizeCourts(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{1, "корт"},
		{2, "корта"},
		{4, "корта"},
		{5, "кортов"},
		{11, "кортов"},
		{12, "кортов"},
		{14, "кортов"},
		{21, "корт"},
		{22, "корта"},
		{111, "кортов"},
	}
	for _, tc := range tests {
		if got := PluralizeCourts(tc.count); got != tc.want {
			t.Errorf("PluralizeCourts(%d) = %q, want %q", tc.count, got, tc.want)
		}
	}
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		name   string
		byType map[string]map[string]struct{}
		want   string
	}{
		{
			name:   "single standard subtype one room",
			byType: map[string]map[string]struct{}{"Панорамик 2x2": roomSet("Корт 1")},
			want:   "10:00–11:00",
		},
		{
			name:   "single standard subtype several rooms",
			byType: map[string]map[string]struct{}{"Панорамик 2x2": roomSet("Корт 1", "Корт 2", "Корт 3")},
			want:   "10:00–11:00 (3 корта)",
		},
		{
			name:   "ultra subtype one room keeps label",
			byType: map[string]map[string]struct{}{"Ультрапанорамик 2x2": roomSet("Корт 5")},
			want:   "10:00–11:00 (Ультрапанорамик 2x2)",
		},
		{
			name:   "ultra subtype several rooms",
			byType: map[string]map[string]struct{}{"Ультрапанорамик 2x2": roomSet("Корт 5", "Корт 6")},
			want:   "10:00–11:00 (Ультрапанорамик 2x2 — 2 корта)",
		},
		{
			name: "mixed subtypes listed alphabetically",
			byType: map[string]map[string]struct{}{
				"Панорамик 2x2":       roomSet("Корт 1"),
				"Ультрапанорамик 2x2": roomSet("Корт 5", "Корт 6"),
			},
			want: "10:00–11:00 (Панорамик 2x2; Ультрапанорамик 2x2 — 2 корта)",
		},
		{
			name:   "trailing dot trimmed from label",
			byType: map[string]map[string]struct{}{"Ультрапанорамик 2x2.": roomSet("Корт 5")},
			want:   "10:00–11:00 (Ультрапанорамик 2x2)",
		},
		{
			name:   "no rooms falls back to bare interval",
			byType: nil,
			want:   "10:00–11:00",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatInterval("10:00–11:00", tc.byType); got != tc.want {
				t.Fatalf("FormatInterval = %q, want %q", got, tc.want)
			}
		})
	}
}
