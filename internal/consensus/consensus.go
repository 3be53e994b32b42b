// Package consensus resolves ranking proposals and votes into per-group
// consensus outcomes and merges them with teacher rankings into a final
// stage ranking.
package consensus

import (
	"math"
	"sort"

	"github.com/peergrade/peergrade/internal/models"
)

// Quorum modes.
const (
	// QuorumMajority requires approvals from more than half of a group's
	// active members.
	QuorumMajority = "majority"

	// QuorumAll requires approval from every active member (unanimous
	// minus absent: inactive members never count).
	QuorumAll = "all"
)

// Default student/teacher weights for the merged ranking.
const (
	DefaultTeacherWeight = 0.3
	scoreTieTolerance    = 0.001
)

// Config controls quorum and ranking-merge behavior.
type Config struct {
	// Quorum is QuorumMajority or QuorumAll.
	Quorum string

	// TeacherWeight is the share of the merged score contributed by
	// teacher rankings, in [0,1]. Student consensus carries the rest.
	TeacherWeight float64
}

// DefaultConfig returns the standard majority quorum with a 0.3 teacher
// weight.
func DefaultConfig() Config {
	return Config{Quorum: QuorumMajority, TeacherWeight: DefaultTeacherWeight}
}

func (c Config) quorumFor(activeMembers int) int {
	if c.Quorum == QuorumAll {
		return activeMembers
	}
	return activeMembers/2 + 1
}

// ResolveGroup determines one group's consensus outcome from its proposals
// and votes. A proposal qualifies when its approval votes from active
// members reach quorum; among simultaneously-qualifying proposals the
// earliest-created wins. A proposer's own submission does not count as an
// approval unless they also voted.
func ResolveGroup(group *models.Group, proposals []*models.RankingProposal, votes []*models.ProposalVote, cfg Config) *models.GroupConsensus {
	active := make(map[string]bool)
	for _, m := range group.Members {
		if m.Active {
			active[m.UserEmail] = true
		}
	}
	out := &models.GroupConsensus{GroupID: group.ID, ActiveMembers: len(active)}
	if len(active) == 0 || len(proposals) == 0 {
		return out
	}
	need := cfg.quorumFor(len(active))

	approvals := make(map[string]int)
	for _, v := range votes {
		if v.Approve && active[v.VoterEmail] {
			approvals[v.ProposalID]++
		}
	}

	ordered := make([]*models.RankingProposal, len(proposals))
	copy(ordered, proposals)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CreatedTime != ordered[j].CreatedTime {
			return ordered[i].CreatedTime < ordered[j].CreatedTime
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, p := range ordered {
		if approvals[p.ID] >= need {
			out.Reached = true
			out.Proposal = p
			out.Approvals = approvals[p.ID]
			return out
		}
	}
	// Report the best approval count for operator visibility.
	for _, p := range ordered {
		if approvals[p.ID] > out.Approvals {
			out.Approvals = approvals[p.ID]
		}
	}
	return out
}

// LatestTeacherRankings reduces a teacher-ranking history to the most
// recent entry per (teacher, group).
func LatestTeacherRankings(rankings []*models.TeacherRanking) []*models.TeacherRanking {
	type key struct{ teacher, group string }
	latest := make(map[key]*models.TeacherRanking)
	for _, r := range rankings {
		k := key{r.TeacherEmail, r.GroupID}
		if cur, ok := latest[k]; !ok || r.CreatedTime > cur.CreatedTime {
			latest[k] = r
		}
	}
	out := make([]*models.TeacherRanking, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeacherEmail != out[j].TeacherEmail {
			return out[i].TeacherEmail < out[j].TeacherEmail
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}

// StageRanking is the merged final ranking for a stage.
type StageRanking struct {
	// Ranks maps groupID → final rank (1 = best). Tied scores share a
	// rank; the distribution engine resolves ties with the occupied-rank
	// method.
	Ranks map[string]int

	// Scores maps groupID → merged weighted score, for audit.
	Scores map[string]float64

	// NoConsensus lists groups excluded because their members never
	// agreed on a proposal.
	NoConsensus []string
}

// ResolveStage merges group consensus rankings with teacher rankings into a
// final ranking over the given groups.
//
// Each group consensus that was reached contributes its agreed ordering as
// one student vote; teacher rankings (latest per teacher+group, averaged
// across teachers) contribute with cfg.TeacherWeight. A rank among n groups
// scores n-rank+1 points, so higher placement means a higher score. Groups
// whose members reached no consensus still receive ranks (they can be
// ranked by others) but are listed in NoConsensus for exclusion from
// automatic member-level distribution.
func ResolveStage(groups []*models.Group, outcomes map[string]*models.GroupConsensus, teacherRankings []*models.TeacherRanking, cfg Config) *StageRanking {
	n := len(groups)
	groupIDs := make([]string, 0, n)
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	sort.Strings(groupIDs)

	studentWeight := 1 - cfg.TeacherWeight

	// Student component: each reached consensus is one equal-weight vote.
	studentScores := make(map[string]float64, n)
	var studentVotes int
	for _, oc := range outcomes {
		if oc.Reached && oc.Proposal != nil {
			studentVotes++
		}
	}
	if studentVotes > 0 {
		per := studentWeight / float64(studentVotes)
		for _, oc := range outcomes {
			if !oc.Reached || oc.Proposal == nil {
				continue
			}
			for gid, rank := range oc.Proposal.Ranking {
				studentScores[gid] += rankScore(n, rank) * per
			}
		}
	}

	// Teacher component: latest per (teacher, group), averaged across
	// teachers.
	teacherScores := make(map[string]float64, n)
	latest := LatestTeacherRankings(teacherRankings)
	teachers := make(map[string]bool)
	for _, r := range latest {
		teachers[r.TeacherEmail] = true
	}
	if len(teachers) > 0 {
		per := cfg.TeacherWeight / float64(len(teachers))
		for _, r := range latest {
			teacherScores[r.GroupID] += rankScore(n, r.Rank) * per
		}
	}

	scores := make(map[string]float64, n)
	for _, gid := range groupIDs {
		scores[gid] = studentScores[gid] + teacherScores[gid]
	}

	// Order by score descending; equal scores share a rank and the next
	// distinct score skips the consumed slots.
	sorted := make([]string, len(groupIDs))
	copy(sorted, groupIDs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if scores[sorted[i]] != scores[sorted[j]] {
			return scores[sorted[i]] > scores[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})
	ranks := make(map[string]int, n)
	for i, gid := range sorted {
		if i > 0 && math.Abs(scores[gid]-scores[sorted[i-1]]) < scoreTieTolerance {
			ranks[gid] = ranks[sorted[i-1]]
		} else {
			ranks[gid] = i + 1
		}
	}

	var noConsensus []string
	for _, gid := range groupIDs {
		if oc, ok := outcomes[gid]; !ok || !oc.Reached {
			noConsensus = append(noConsensus, gid)
		}
	}

	return &StageRanking{Ranks: ranks, Scores: scores, NoConsensus: noConsensus}
}

// rankScore converts a rank among n entries to points: 1st → n, nth → 1.
func rankScore(n, rank int) float64 {
	if rank < 1 || rank > n {
		return 0
	}
	return float64(n - rank + 1)
}
