package bluetooth

import (
	"sort"
	"strings"
)

// priorityKeywords maps name fragments to a selection weight. Wearable
// audio gear tracks its owner far better than phones or desk peripherals.
var priorityKeywords = []struct {
	words  []string
	weight int
}{
	{[]string{"buds", "airpods", "headphone", "earphone", "headset"}, 10},
	{[]string{"audio", "sound", "speaker"}, 8},
	{[]string{"watch", "band"}, 7},
	{[]string{"mouse", "keyboard"}, 5},
	{[]string{"phone", "mobile"}, 3},
}

// Priority scores a device name for auto-selection.
func Priority(name string) int {
	lower := strings.ToLower(name)
	for _, group := range priorityKeywords {
		for _, w := range group.words {
			if strings.Contains(lower, w) {
				return group.weight
			}
		}
	}
	return 1
}

// Rank returns the devices sorted by descending selection priority, with
// connected devices first within the same priority. The input slice is
// not modified.
func Rank(devices []Device) []Device {
	ranked := make([]Device, len(devices))
	copy(ranked, devices)

	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := Priority(ranked[i].Name), Priority(ranked[j].Name)
		if pi != pj {
			return pi > pj
		}
		return ranked[i].Connected && !ranked[j].Connected
	})
	return ranked
}

// PickTarget auto-selects the best monitoring target: the highest-priority
// connected device, falling back to the highest-priority device overall.
// The second return value is false when the list is empty.
func PickTarget(devices []Device) (Device, bool) {
	if len(devices) == 0 {
		return Device{}, false
	}

	ranked := Rank(devices)
	for _, d := range ranked {
		if d.Connected {
			return d, true
		}
	}
	return ranked[0], true
}
