package gate

import (
	"testing"

	"github.com/hejijunhao/warden/internal/model"
)

func TestShouldAct(t *testing.T) {
	levels := []model.Severity{model.SeverityLow, model.SeverityMedium, model.SeverityHigh}
	for _, sev := range levels {
		for _, thr := range levels {
			want := sev >= thr
			if got := ShouldAct(sev, thr); got != want {
				t.Errorf("ShouldAct(%s, %s) = %v, want %v", sev, thr, got, want)
			}
		}
	}
}

func TestFloor(t *testing.T) {
	tests := []struct {
		in   []model.Severity
		want model.Severity
	}{
		{nil, model.SeverityLow},
		{[]model.Severity{model.SeverityHigh}, model.SeverityHigh},
		{[]model.Severity{model.SeverityHigh, model.SeverityMedium}, model.SeverityMedium},
		{[]model.Severity{model.SeverityMedium, model.SeverityLow, model.SeverityHigh}, model.SeverityLow},
	}
	for _, tt := range tests {
		if got := Floor(tt.in...); got != tt.want {
			t.Errorf("Floor(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
