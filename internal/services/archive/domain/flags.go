// Package domain holds the archive identity model and DTOs shared by the
// selector, writer and orchestrator
package domain

import "strings"

// CorePlugin always has an archive per (site, period, segment); its visit
// counters are the fallback when a plugin archive carries none
const CorePlugin = "VisitsSummary"

// DoneValue is the completion status stored in a done flag row
type DoneValue float64

// Done flag codes are storage values; never renumber
const (
	DoneOK          DoneValue = 1
	DoneError       DoneValue = 2
	DoneOKTemporary DoneValue = 3
	DoneInvalidated DoneValue = 4
)

// Usable reports whether a flag value marks a readable archive
// Temporary archives are usable; their freshness is checked separately
func (v DoneValue) Usable() bool { return v == DoneOK || v == DoneOKTemporary }

// DoneFlag composes the synthetic record name that marks archive
// completion for one (segment, plugin) pair:
//
//	done                    no segment, all-plugins archive
//	done<hash>              segment, all-plugins archive
//	done.Referrers          no segment, single-plugin archive
//	done<hash>.Referrers    segment, single-plugin archive
func DoneFlag(segmentHash, plugin string) string {
	name := "done" + segmentHash
	if plugin != "" {
		name += "." + plugin
	}
	return name
}

// DoneFlagsFor lists the flag names that can satisfy a query for the
// given plugins: the all-plugins flag first, then one per plugin
// The core plugin is always represented
func DoneFlagsFor(segmentHash string, plugins []string) []string {
	out := []string{DoneFlag(segmentHash, "")}
	seen := map[string]bool{"": true}
	for _, p := range append([]string{CorePlugin}, plugins...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, DoneFlag(segmentHash, p))
	}
	return out
}

// IsDoneFlag reports whether a record name is a done flag
func IsDoneFlag(name string) bool { return strings.HasPrefix(name, "done") }

// PluginOfFlag extracts the plugin component of a done flag name,
// "" for an all-plugins flag
func PluginOfFlag(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return ""
}
