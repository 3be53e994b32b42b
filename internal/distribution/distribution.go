// Package distribution implements the weighted point-distribution engine.
//
// Given the settled ranks of all competing groups, each group's
// participation percentages and a reward pool, it computes per-member point
// amounts such that the whole pool is distributed exactly. The engine is a
// pure function: stateless, deterministic, no I/O.
package distribution

import (
	"math"
	"sort"

	"github.com/peergrade/peergrade/internal/apperr"
)

// DefaultGranularity is the participation percentage unit. Participation
// shares are expressed in multiples of this (e.g. 5 → 5%, 10%, ... 100%).
const DefaultGranularity = 5.0

// percentTolerance absorbs floating point noise when checking that a
// group's participation sums to 100.
const percentTolerance = 0.01

// GroupInput is one group's contribution to a stage distribution.
type GroupInput struct {
	GroupID string

	// Rank is the group's settled competitive rank, 1 = best. Ranks may
	// tie; tied groups are resolved with the occupied-rank method.
	Rank int

	// Participation maps member email → claimed percentage of credit.
	// Must sum to 100 per group. An empty map marks a group excluded from
	// rewards: it occupies its rank slot but its members earn nothing.
	Participation map[string]float64

	// SubmissionID is carried through to the ledger transactions.
	SubmissionID string
}

// MemberPoints is the computed award for one member.
type MemberPoints struct {
	GroupID      string
	SubmissionID string
	UserEmail    string
	Rank         int
	Percentage   float64

	// BaseUnits is Percentage / granularity, RankWeight the group's
	// occupied-rank weight, FinalWeight their product.
	BaseUnits  float64
	RankWeight float64
	FinalWeight float64

	Points int64
}

// Result is the full stage distribution.
type Result struct {
	Members     []MemberPoints
	GroupTotals map[string]int64

	// TotalDistributed always equals the pool passed in.
	TotalDistributed int64
	TotalWeight      float64
}

// RankWeight returns the ideal-model weight for a rank among n groups:
// rank 1 → n, rank n → 1. It does not account for ties; Distribute applies
// the occupied-rank method for those.
func RankWeight(n, rank int) float64 {
	return float64(n - rank + 1)
}

// Distribute computes per-member point amounts for a stage.
//
// Rank weights use the occupied-rank method: groups sorted by rank consume
// consecutive rank slots, tied groups split the sum of their slots' weights
// equally, and the next distinct rank resumes at the next free slot. A
// member's final weight is (percentage / granularity) × the group's rank
// weight; points are the pool split proportionally to final weights across
// every member of every group, rounded by largest remainder so the sum of
// all points equals the pool exactly.
func Distribute(groups []GroupInput, pool int64, granularity float64) (*Result, error) {
	n := len(groups)
	if n == 0 {
		return nil, apperr.New(apperr.CodeInvalidDistributionInput, "no groups to distribute to")
	}
	if pool < 0 {
		return nil, apperr.New(apperr.CodeInvalidDistributionInput, "reward pool must not be negative: %d", pool)
	}
	if granularity <= 0 || granularity > 100 {
		return nil, apperr.New(apperr.CodeInvalidDistributionInput, "granularity out of range: %v", granularity)
	}
	for _, g := range groups {
		if g.Rank < 1 || g.Rank > n {
			return nil, apperr.New(apperr.CodeInvalidDistributionInput,
				"group %s rank %d out of range [1,%d]", g.GroupID, g.Rank, n)
		}
		var sum float64
		for email, pct := range g.Participation {
			if pct < 0 {
				return nil, apperr.New(apperr.CodeInvalidDistributionInput,
					"group %s member %s has negative participation", g.GroupID, email)
			}
			sum += pct
		}
		// A group with no participation still occupies its rank slot but
		// earns nothing (excluded from rewards).
		if len(g.Participation) > 0 && math.Abs(sum-100) > percentTolerance {
			return nil, apperr.New(apperr.CodeInvalidDistributionInput,
				"group %s participation sums to %v, want 100", g.GroupID, sum)
		}
	}

	rankWeights := occupiedRankWeights(groups)

	// Deterministic member order: groups by (rank, groupID), members by email.
	sorted := make([]GroupInput, n)
	copy(sorted, groups)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		return sorted[i].GroupID < sorted[j].GroupID
	})

	var members []MemberPoints
	var totalWeight float64
	for _, g := range sorted {
		emails := make([]string, 0, len(g.Participation))
		for email := range g.Participation {
			emails = append(emails, email)
		}
		sort.Strings(emails)
		for _, email := range emails {
			pct := g.Participation[email]
			if pct <= 0 {
				continue
			}
			units := pct / granularity
			w := rankWeights[g.GroupID]
			members = append(members, MemberPoints{
				GroupID:      g.GroupID,
				SubmissionID: g.SubmissionID,
				UserEmail:    email,
				Rank:         g.Rank,
				Percentage:   pct,
				BaseUnits:    units,
				RankWeight:   w,
				FinalWeight:  units * w,
			})
			totalWeight += units * w
		}
	}
	if totalWeight == 0 {
		return nil, apperr.New(apperr.CodeInvalidDistributionInput, "no participating members")
	}

	assignPoints(members, pool, totalWeight)

	groupTotals := make(map[string]int64, n)
	var distributed int64
	for _, m := range members {
		groupTotals[m.GroupID] += m.Points
		distributed += m.Points
	}

	return &Result{
		Members:          members,
		GroupTotals:      groupTotals,
		TotalDistributed: distributed,
		TotalWeight:      totalWeight,
	}, nil
}

// occupiedRankWeights assigns each group a weight via the occupied-rank
// method: groups tied at a rank consume consecutive slots (two groups tied
// for 2nd occupy slots 2 and 3, the next group starts at slot 4) and split
// the slots' combined weight equally. Slot weights are N, N-1, ..., 1.
func occupiedRankWeights(groups []GroupInput) map[string]float64 {
	n := len(groups)
	byRank := make(map[int][]string)
	for _, g := range groups {
		byRank[g.Rank] = append(byRank[g.Rank], g.GroupID)
	}
	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	weights := make(map[string]float64, n)
	slot := 0
	for _, r := range ranks {
		tied := byRank[r]
		sort.Strings(tied)
		var groupWeight float64
		for i := range tied {
			groupWeight += float64(n - (slot + i))
		}
		per := groupWeight / float64(len(tied))
		for _, id := range tied {
			weights[id] = per
		}
		slot += len(tied)
	}
	return weights
}

// assignPoints converts weights to integer points using the largest
// remainder method: floor everyone's raw share, then hand the leftover
// points out one each in order of largest fractional remainder, ties broken
// by higher final weight then member email. The assigned total always
// equals pool.
func assignPoints(members []MemberPoints, pool int64, totalWeight float64) {
	type frac struct {
		idx int
		rem float64
	}
	var floorSum int64
	fracs := make([]frac, len(members))
	for i := range members {
		raw := members[i].FinalWeight * float64(pool) / totalWeight
		fl := math.Floor(raw)
		members[i].Points = int64(fl)
		floorSum += int64(fl)
		fracs[i] = frac{idx: i, rem: raw - fl}
	}
	leftover := pool - floorSum
	sort.Slice(fracs, func(a, b int) bool {
		fa, fb := fracs[a], fracs[b]
		if fa.rem != fb.rem {
			return fa.rem > fb.rem
		}
		ma, mb := members[fa.idx], members[fb.idx]
		if ma.FinalWeight != mb.FinalWeight {
			return ma.FinalWeight > mb.FinalWeight
		}
		return ma.UserEmail < mb.UserEmail
	})
	for i := int64(0); i < leftover; i++ {
		members[fracs[i%int64(len(fracs))].idx].Points++
	}
}
