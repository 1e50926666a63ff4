package alert

import "github.com/hejijunhao/warden/internal/engine/compactor"

// Format returns a copy of a with fields stripped according to verbosity.
// At Minimal the issue body and target extras are dropped.
func Format(a Alert, verbosity compactor.Verbosity) Alert {
	if verbosity == compactor.Minimal {
		a.Finding.IssueBody = ""
		a.Target.Extra = nil
	}
	return a
}
