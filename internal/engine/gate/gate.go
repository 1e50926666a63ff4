// Package gate decides whether a finding's severity warrants an action.
package gate

import "github.com/hejijunhao/warden/internal/model"

// ShouldAct reports whether severity meets threshold.
func ShouldAct(severity, threshold model.Severity) bool {
	return severity >= threshold
}

// Floor returns the lowest of the given thresholds. It is the severity below
// which no action of any kind can fire.
func Floor(thresholds ...model.Severity) model.Severity {
	if len(thresholds) == 0 {
		return model.SeverityLow
	}
	lo := thresholds[0]
	for _, t := range thresholds[1:] {
		if t < lo {
			lo = t
		}
	}
	return lo
}
