// Package slots computes contiguous booking windows from raw per-room
// availability and renders them as human-readable interval labels.
package slots

import (
	"sort"
	"time"
)

// DefaultStepMinutes is the granularity assumed for a room whose series is
// too short to infer one.
const DefaultStepMinutes = 30

// RoomSlots couples one bookable room with its chronologically sorted
// availability start times for a single date.
type RoomSlots struct {
	Studio  string
	Subtype string
	Room    string
	Times   []time.Time
}

// DetectStep infers a room's native slot granularity in minutes: the minimum
// positive gap between consecutive timestamps. Series with fewer than two
// points fall back to DefaultStepMinutes.
func DetectStep(times []time.Time) int {
	min := 0
	for i := 1; i < len(times); i++ {
		delta := int(times[i].Sub(times[i-1]) / time.Minute)
		if delta <= 0 {
			continue
		}
		if min == 0 || delta < min {
			min = delta
		}
	}
	if min == 0 {
		return DefaultStepMinutes
	}
	return min
}

// CollectWindows returns the sorted, de-duplicated labels of every contiguous
// run of slots that exactly covers durationMinutes. A window of k consecutive
// entries is accepted only when every adjacent pair differs by exactly one
// granularity step; if fewer than k entries remain past a given start, no
// window starts there.
func CollectWindows(times []time.Time, durationMinutes, stepMinutes int) []string {
	if len(times) == 0 || stepMinutes <= 0 || durationMinutes <= 0 {
		return nil
	}
	if durationMinutes%stepMinutes != 0 {
		return nil
	}

	duration := time.Duration(durationMinutes) * time.Minute
	step := time.Duration(stepMinutes) * time.Minute
	required := durationMinutes / stepMinutes
	if required < 1 {
		required = 1
	}

	seen := make(map[string]struct{})
	if required == 1 {
		for _, start := range times {
			seen[formatWindow(start, duration)] = struct{}{}
		}
		return sortedKeys(seen)
	}

	if len(times) < required {
		return nil
	}
	for i := 0; i+required <= len(times); i++ {
		if isConsecutive(times[i:i+required], step) {
			seen[formatWindow(times[i], duration)] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Aggregate merges per-room series into {studio -> sorted interval labels}.
// Each room contributes only windows compatible with its own granularity;
// rooms with no timestamps or an incompatible duration are skipped silently.
func Aggregate(rooms []RoomSlots, durationMinutes int) map[string][]string {
	// studio -> interval -> subtype -> set of room names
	grouped := make(map[string]map[string]map[string]map[string]struct{})

	for _, room := range rooms {
		if len(room.Times) == 0 {
			continue
		}
		step := DetectStep(room.Times)
		if step <= 0 || durationMinutes%step != 0 {
			continue
		}
		windows := CollectWindows(room.Times, durationMinutes, step)
		if len(windows) == 0 {
			continue
		}
		byInterval, ok := grouped[room.Studio]
		if !ok {
			byInterval = make(map[string]map[string]map[string]struct{})
			grouped[room.Studio] = byInterval
		}
		for _, interval := range windows {
			byType, ok := byInterval[interval]
			if !ok {
				byType = make(map[string]map[string]struct{})
				byInterval[interval] = byType
			}
			names, ok := byType[room.Subtype]
			if !ok {
				names = make(map[string]struct{})
				byType[room.Subtype] = names
			}
			names[room.Room] = struct{}{}
		}
	}

	result := make(map[string][]string, len(grouped))
	for studio, byInterval := range grouped {
		intervals := make([]string, 0, len(byInterval))
		for interval := range byInterval {
			intervals = append(intervals, interval)
		}
		// HH:MM labels sort chronologically as strings.
		sort.Strings(intervals)
		entries := make([]string, 0, len(intervals))
		for _, interval := range intervals {
			entries = append(entries, FormatInterval(interval, byInterval[interval]))
		}
		result[studio] = entries
	}
	return result
}

// Studios returns the group names of an Aggregate result in display order.
func Studios(byStudio map[string][]string) []string {
	names := make([]string, 0, len(byStudio))
	for name := range byStudio {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatWindow(start time.Time, duration time.Duration) string {
	return start.Format("15:04") + "–" + start.Add(duration).Format("15:04")
}

func isConsecutive(window []time.Time, step time.Duration) bool {
	for i := 1; i < len(window); i++ {
		if window[i].Sub(window[i-1]) != step {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
