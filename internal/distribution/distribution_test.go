package distribution

import (
	"errors"
	"testing"

	"github.com/peergrade/peergrade/internal/apperr"
)

func TestDistribute(t *testing.T) {
	tests := []struct {
		name         string
		groups       []GroupInput
		pool         int64
		granularity  float64
		wantErr      bool
		validateFunc func(t *testing.T, res *Result)
	}{
		{
			name: "two groups proportional to rank and participation",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"alice@x": 60, "bob@x": 40}},
				{GroupID: "g2", Rank: 2, Participation: map[string]float64{"carol@x": 100}},
			},
			pool:        600,
			granularity: 5,
			validateFunc: func(t *testing.T, res *Result) {
				// Units: alice 12, bob 8, carol 20. Rank weights: g1=2, g2=1.
				// Final weights: alice 24, bob 16, carol 20, total 60.
				// Pool 600 → 10 per weight unit.
				want := map[string]int64{"alice@x": 240, "bob@x": 160, "carol@x": 200}
				checkPoints(t, res, want)
				if res.TotalDistributed != 600 {
					t.Errorf("TotalDistributed = %d, want 600", res.TotalDistributed)
				}
			},
		},
		{
			name: "four groups with a split first place",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 60, "b@x": 40}},
				{GroupID: "g2", Rank: 2, Participation: map[string]float64{"c@x": 100}},
				{GroupID: "g3", Rank: 3, Participation: map[string]float64{"d@x": 100}},
				{GroupID: "g4", Rank: 4, Participation: map[string]float64{"e@x": 100}},
			},
			pool:        1000,
			granularity: 5,
			validateFunc: func(t *testing.T, res *Result) {
				// Rank 1 weight is 4; a (60%) has 12×4=48, b (40%) 8×4=32.
				// Lower ranks: 20×3=60, 20×2=40, 20×1=20. Total weight 200,
				// pool 1000 → 5 per weight unit.
				for _, m := range res.Members {
					switch m.UserEmail {
					case "a@x":
						if m.FinalWeight != 48 {
							t.Errorf("a@x final weight = %v, want 48", m.FinalWeight)
						}
					case "b@x":
						if m.FinalWeight != 32 {
							t.Errorf("b@x final weight = %v, want 32", m.FinalWeight)
						}
					}
				}
				want := map[string]int64{"a@x": 240, "b@x": 160, "c@x": 300, "d@x": 200, "e@x": 100}
				checkPoints(t, res, want)
				if res.TotalDistributed != 1000 {
					t.Errorf("TotalDistributed = %d, want 1000", res.TotalDistributed)
				}
			},
		},
		{
			name: "tied groups split occupied rank slots",
			groups: []GroupInput{
				{GroupID: "a", Rank: 1, Participation: map[string]float64{"ann@x": 100}},
				{GroupID: "b", Rank: 1, Participation: map[string]float64{"ben@x": 100}},
				{GroupID: "c", Rank: 3, Participation: map[string]float64{"cat@x": 100}},
			},
			pool:        600,
			granularity: 100,
			validateFunc: func(t *testing.T, res *Result) {
				// Two groups tied for 1st occupy slots 1 and 2: weights 3 and
				// 2, split to 2.5 each. c takes slot 3 with weight 1.
				// Total weight 6 → 100 per unit.
				want := map[string]int64{"ann@x": 250, "ben@x": 250, "cat@x": 100}
				checkPoints(t, res, want)
			},
		},
		{
			name: "largest remainder conserves the pool",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 100}},
				{GroupID: "g2", Rank: 2, Participation: map[string]float64{"b@x": 100}},
			},
			pool:        10,
			granularity: 100,
			validateFunc: func(t *testing.T, res *Result) {
				// Weights 2 and 1: raw 6.67 and 3.33. Floors 6+3, leftover 1
				// goes to the larger remainder.
				want := map[string]int64{"a@x": 7, "b@x": 3}
				checkPoints(t, res, want)
				if res.TotalDistributed != 10 {
					t.Errorf("TotalDistributed = %d, want 10", res.TotalDistributed)
				}
			},
		},
		{
			name: "excluded group occupies its rank but earns nothing",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 100}},
				{GroupID: "g2", Rank: 2, Participation: map[string]float64{}},
				{GroupID: "g3", Rank: 3, Participation: map[string]float64{"c@x": 100}},
			},
			pool:        400,
			granularity: 100,
			validateFunc: func(t *testing.T, res *Result) {
				// g2 holds rank 2, so g3 keeps weight 1 rather than moving
				// up. Weights: a=3, c=1, total 4 → 100 per unit.
				want := map[string]int64{"a@x": 300, "c@x": 100}
				checkPoints(t, res, want)
				if _, ok := res.GroupTotals["g2"]; ok {
					t.Error("excluded group g2 should receive no points")
				}
			},
		},
		{
			name:        "no groups",
			groups:      nil,
			pool:        100,
			granularity: 5,
			wantErr:     true,
		},
		{
			name: "rank out of range",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 3, Participation: map[string]float64{"a@x": 100}},
			},
			pool:        100,
			granularity: 5,
			wantErr:     true,
		},
		{
			name: "participation does not sum to 100",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 60, "b@x": 30}},
			},
			pool:        100,
			granularity: 5,
			wantErr:     true,
		},
		{
			name: "negative participation",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 150, "b@x": -50}},
			},
			pool:        100,
			granularity: 5,
			wantErr:     true,
		},
		{
			name: "granularity out of range",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 100}},
			},
			pool:        100,
			granularity: 0,
			wantErr:     true,
		},
		{
			name: "negative pool",
			groups: []GroupInput{
				{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 100}},
			},
			pool:        -1,
			granularity: 5,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Distribute(tt.groups, tt.pool, tt.granularity)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var appErr *apperr.Error
				if !errors.As(err, &appErr) || appErr.Code != apperr.CodeInvalidDistributionInput {
					t.Errorf("error code = %s, want %s", apperr.CodeOf(err), apperr.CodeInvalidDistributionInput)
				}
				return
			}
			if err != nil {
				t.Fatalf("Distribute failed: %v", err)
			}
			if tt.validateFunc != nil {
				tt.validateFunc(t, res)
			}
		})
	}
}

// TestDistributeConservation checks the pool is distributed exactly for
// awkward weight combinations.
func TestDistributeConservation(t *testing.T) {
	cases := []struct {
		name string
		pool int64
	}{
		{"small pool", 7},
		{"prime pool", 997},
		{"large pool", 1000000},
	}
	groups := []GroupInput{
		{GroupID: "g1", Rank: 1, Participation: map[string]float64{"a@x": 35, "b@x": 35, "c@x": 30}},
		{GroupID: "g2", Rank: 2, Participation: map[string]float64{"d@x": 55, "e@x": 45}},
		{GroupID: "g3", Rank: 3, Participation: map[string]float64{"f@x": 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Distribute(groups, tc.pool, 5)
			if err != nil {
				t.Fatalf("Distribute failed: %v", err)
			}
			var sum int64
			for _, m := range res.Members {
				sum += m.Points
			}
			if sum != tc.pool {
				t.Errorf("sum of points = %d, want pool %d", sum, tc.pool)
			}
			if res.TotalDistributed != tc.pool {
				t.Errorf("TotalDistributed = %d, want %d", res.TotalDistributed, tc.pool)
			}
		})
	}
}

// TestDistributeMonotonic checks that within one group, a member with a
// larger participation never earns fewer points.
func TestDistributeMonotonic(t *testing.T) {
	groups := []GroupInput{
		{GroupID: "g1", Rank: 1, Participation: map[string]float64{"big@x": 70, "small@x": 30}},
		{GroupID: "g2", Rank: 2, Participation: map[string]float64{"other@x": 100}},
	}
	res, err := Distribute(groups, 999, 5)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	points := map[string]int64{}
	for _, m := range res.Members {
		points[m.UserEmail] = m.Points
	}
	if points["big@x"] < points["small@x"] {
		t.Errorf("big participation earned %d, less than small's %d", points["big@x"], points["small@x"])
	}
}

func TestRankWeight(t *testing.T) {
	tests := []struct {
		n, rank int
		want    float64
	}{
		{5, 1, 5},
		{5, 5, 1},
		{3, 2, 2},
		{1, 1, 1},
	}
	for _, tt := range tests {
		if got := RankWeight(tt.n, tt.rank); got != tt.want {
			t.Errorf("RankWeight(%d, %d) = %v, want %v", tt.n, tt.rank, got, tt.want)
		}
	}
}

func checkPoints(t *testing.T, res *Result, want map[string]int64) {
	t.Helper()
	got := map[string]int64{}
	for _, m := range res.Members {
		got[m.UserEmail] = m.Points
	}
	for email, points := range want {
		if got[email] != points {
			t.Errorf("%s points = %d, want %d", email, got[email], points)
		}
	}
	if len(got) != len(want) {
		t.Errorf("member count = %d, want %d", len(got), len(want))
	}
}
