package notify

import "sort"

// fineTail is the dense last-stretch schedule; events close to their start
// always get these thresholds regardless of the lead window.
var fineTail = [...]int{30, 15, 10, 5, 0}

// Points computes the minutes-before-start thresholds for a lead window:
// a geometric leg halving from the full window down to the hour mark,
// unioned with the fixed fine-grained tail, deduplicated, sorted descending.
//
//	Points(120) = [120 30 15 10 5 0]
//	Points(60)  = [60 30 15 10 5 0]
//	Points(30)  = [30 15 10 5 0]
func Points(leadMinutes int) []int {
	set := map[int]struct{}{}
	if leadMinutes > 0 {
		set[leadMinutes] = struct{}{}
		for m := leadMinutes / 2; m > 60; m /= 2 {
			set[m] = struct{}{}
		}
	}
	for _, m := range fineTail {
		set[m] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
