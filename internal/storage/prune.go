package storage

import (
	"sort"

	"go.uber.org/multierr"
)

// Stale returns the paths in previous that are not in current, sorted.
func Stale(previous, current map[string]struct{}) []string {
	var out []string
	for p := range previous {
		if _, ok := current[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Prune deletes every path in stale and returns the paths it removed.
// Failures are collected and do not stop the remaining deletions.
func Prune(w Writer, stale []string) ([]string, error) {
	var removed []string
	var errs error
	for _, p := range stale {
		if err := w.Delete(p); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed = append(removed, p)
	}
	return removed, errs
}
