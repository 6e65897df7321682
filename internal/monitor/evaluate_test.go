package monitor

import (
	"testing"
	"time"

	"github.com/orbitvpn/sentinel/internal/model"
	"github.com/orbitvpn/sentinel/internal/panel"
)

const gb = int64(1) << 30

func usageOf(used, total int64) panel.ClientUsage {
	return panel.ClientUsage{UsedBytes: used, TotalBytes: total}
}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

func TestEvaluateTrafficThresholds(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name  string
		svc   model.Service
		usage panel.ClientUsage
		want  []ActionKind
	}{
		{
			name:  "75 percent unwarned",
			svc:   model.Service{Status: model.StatusActive},
			usage: usageOf(75*gb/10, 10*gb), // 7.5 of 10 GB
			want:  []ActionKind{ActionWarn70},
		},
		{
			name:  "75 percent already warned",
			svc:   model.Service{Status: model.StatusActive, Flags: model.WarningFlags{Warned70Percent: true}},
			usage: usageOf(75*gb/10, 10*gb),
			want:  nil,
		},
		{
			name:  "under 70 percent",
			svc:   model.Service{Status: model.StatusActive},
			usage: usageOf(69*gb/100, gb),
			want:  nil,
		},
		{
			name:  "exactly 100 percent active",
			svc:   model.Service{Status: model.StatusActive},
			usage: usageOf(10*gb, 10*gb),
			want:  []ActionKind{ActionExhaust},
		},
		{
			name:  "over 100 percent already disabled",
			svc:   model.Service{Status: model.StatusDisabled, ExhaustedAtNs: now.UnixNano()},
			usage: usageOf(105*gb/100, gb),
			want:  []ActionKind{ActionOverageCheck},
		},
		{
			name:  "unlimited skips thresholds",
			svc:   model.Service{Status: model.StatusActive},
			usage: usageOf(1024*gb, 0),
			want:  nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := kinds(Evaluate(&tc.svc, tc.usage, now))
			if len(got) != len(tc.want) {
				t.Fatalf("actions = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("actions = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestEvaluatePlanExpiry(t *testing.T) {
	now := time.Now()
	planAt := func(d time.Duration) model.Service {
		return model.Service{
			Status:      model.StatusActive,
			ProductID:   10,
			ExpiresAtNs: now.Add(d).UnixNano(),
		}
	}

	t.Run("three day warning window", func(t *testing.T) {
		svc := planAt(60 * time.Hour) // 2.5 days out
		got := Evaluate(&svc, usageOf(0, 10*gb), now)
		if len(got) != 1 || got[0].Kind != ActionWarnThreeDays {
			t.Fatalf("actions = %v, want three-day warning", kinds(got))
		}
	})

	t.Run("three day warning is one shot", func(t *testing.T) {
		svc := planAt(60 * time.Hour)
		svc.Flags.WarnedThreeDays = true
		if got := Evaluate(&svc, usageOf(0, 10*gb), now); len(got) != 0 {
			t.Fatalf("actions = %v, want none", kinds(got))
		}
	})

	t.Run("four days out not warned", func(t *testing.T) {
		svc := planAt(100 * time.Hour)
		if got := Evaluate(&svc, usageOf(0, 10*gb), now); len(got) != 0 {
			t.Fatalf("actions = %v, want none", kinds(got))
		}
	})

	t.Run("past expiry disables", func(t *testing.T) {
		svc := planAt(-time.Hour)
		got := Evaluate(&svc, usageOf(0, 10*gb), now)
		if len(got) != 1 || got[0].Kind != ActionExpire {
			t.Fatalf("actions = %v, want expire", kinds(got))
		}
	})

	t.Run("expired and disabled gets overage check", func(t *testing.T) {
		svc := planAt(-2 * time.Hour)
		svc.Status = model.StatusDisabled
		svc.ExpiredAtNs = now.Add(-2 * time.Hour).UnixNano()
		got := Evaluate(&svc, usageOf(11*gb, 10*gb), now)
		if len(got) != 1 || got[0].Kind != ActionOverageCheck {
			t.Fatalf("actions = %v, want single overage check", kinds(got))
		}
		if got[0].AnchorNs != svc.ExpiredAtNs {
			t.Fatalf("overage anchor = %d, want expired_at", got[0].AnchorNs)
		}
	})

	t.Run("expiry warning combines with traffic warning", func(t *testing.T) {
		svc := planAt(48 * time.Hour)
		got := kinds(Evaluate(&svc, usageOf(8*gb, 10*gb), now))
		if len(got) != 2 || got[0] != ActionWarnThreeDays || got[1] != ActionWarn70 {
			t.Fatalf("actions = %v, want [three-day, 70 percent]", got)
		}
	})
}

func TestOverageBreached(t *testing.T) {
	now := time.Now()
	grace := 24 * time.Hour
	freshAnchor := now.Add(-time.Hour).UnixNano()
	staleAnchor := now.Add(-25 * time.Hour).UnixNano()

	cases := []struct {
		name   string
		usage  panel.ClientUsage
		anchor int64
		want   bool
	}{
		{"110 percent breaches", usageOf(11*gb, 10*gb), freshAnchor, true},
		{"one GB over breaches", usageOf(101*gb, 100*gb), freshAnchor, true},
		{"small overage tolerated", usageOf(1050*gb/1000, gb), freshAnchor, false},
		{"outside grace window ignored", usageOf(20*gb, 10*gb), staleAnchor, false},
		{"no anchor ignored", usageOf(20*gb, 10*gb), 0, false},
		{"unlimited ignored", usageOf(20*gb, 0), freshAnchor, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := overageBreached(tc.usage, tc.anchor, grace, now); got != tc.want {
				t.Fatalf("overageBreached = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBytesToGB(t *testing.T) {
	cases := []struct {
		bytes int64
		want  float64
	}{
		{0, 0},
		{gb, 1},
		{gb / 2, 0.5},
		{gb + gb/10000, 1.0001},
		{123456789, 0.115},
	}
	for _, tc := range cases {
		if got := BytesToGB(tc.bytes); got != tc.want {
			t.Fatalf("BytesToGB(%d) = %v, want %v", tc.bytes, got, tc.want)
		}
	}
}

func TestUpdateBuffer(t *testing.T) {
	var b UpdateBuffer
	if b.Len() != 0 {
		t.Fatalf("fresh buffer not empty")
	}
	b.Stage(1, 0.5)
	b.Stage(2, 1.25)
	if b.Len() != 2 {
		t.Fatalf("len = %d, want 2", b.Len())
	}

	got := b.Drain()
	if len(got) != 2 || got[0].ID != 1 || got[1].UsedGB != 1.25 {
		t.Fatalf("drained = %+v", got)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not cleared after drain")
	}
	if again := b.Drain(); len(again) != 0 {
		t.Fatalf("second drain returned %d entries", len(again))
	}
}
