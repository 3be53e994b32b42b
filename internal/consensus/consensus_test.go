package consensus

import (
	"testing"

	"github.com/peergrade/peergrade/internal/models"
)

func testGroup(id string, members ...string) *models.Group {
	g := &models.Group{ID: id, ProjectID: "p1", Name: id, Active: true}
	for _, m := range members {
		g.Members = append(g.Members, models.GroupMember{UserEmail: m, Active: true})
	}
	return g
}

func TestResolveGroup(t *testing.T) {
	group := testGroup("g1", "a@x", "b@x", "c@x")
	ranking := map[string]int{"g1": 1, "g2": 2}

	tests := []struct {
		name          string
		group         *models.Group
		proposals     []*models.RankingProposal
		votes         []*models.ProposalVote
		cfg           Config
		wantReached   bool
		wantProposal  string
		wantApprovals int
	}{
		{
			name:  "majority quorum reached with two of three",
			group: group,
			proposals: []*models.RankingProposal{
				{ID: "p1", GroupID: "g1", Ranking: ranking, CreatedTime: 100},
			},
			votes: []*models.ProposalVote{
				{ProposalID: "p1", VoterEmail: "a@x", Approve: true},
				{ProposalID: "p1", VoterEmail: "b@x", Approve: true},
				{ProposalID: "p1", VoterEmail: "c@x", Approve: false},
			},
			cfg:           Config{Quorum: QuorumMajority},
			wantReached:   true,
			wantProposal:  "p1",
			wantApprovals: 2,
		},
		{
			name:  "all quorum not reached with two of three",
			group: group,
			proposals: []*models.RankingProposal{
				{ID: "p1", GroupID: "g1", Ranking: ranking, CreatedTime: 100},
			},
			votes: []*models.ProposalVote{
				{ProposalID: "p1", VoterEmail: "a@x", Approve: true},
				{ProposalID: "p1", VoterEmail: "b@x", Approve: true},
			},
			cfg:         Config{Quorum: QuorumAll},
			wantReached: false,
		},
		{
			name:  "earliest created wins among qualifying proposals",
			group: group,
			proposals: []*models.RankingProposal{
				{ID: "late", GroupID: "g1", Ranking: ranking, CreatedTime: 200},
				{ID: "early", GroupID: "g1", Ranking: ranking, CreatedTime: 100},
			},
			votes: []*models.ProposalVote{
				{ProposalID: "late", VoterEmail: "a@x", Approve: true},
				{ProposalID: "late", VoterEmail: "b@x", Approve: true},
				{ProposalID: "early", VoterEmail: "b@x", Approve: true},
				{ProposalID: "early", VoterEmail: "c@x", Approve: true},
			},
			cfg:          Config{Quorum: QuorumMajority},
			wantReached:  true,
			wantProposal: "early",
		},
		{
			name:  "inactive member approvals do not count",
			group: &models.Group{ID: "g1", Active: true, Members: []models.GroupMember{
				{UserEmail: "a@x", Active: true},
				{UserEmail: "b@x", Active: true},
				{UserEmail: "gone@x", Active: false},
			}},
			proposals: []*models.RankingProposal{
				{ID: "p1", GroupID: "g1", Ranking: ranking, CreatedTime: 100},
			},
			votes: []*models.ProposalVote{
				{ProposalID: "p1", VoterEmail: "a@x", Approve: true},
				{ProposalID: "p1", VoterEmail: "gone@x", Approve: true},
			},
			// Two active members: majority needs 2, only one active approval.
			cfg:         Config{Quorum: QuorumMajority},
			wantReached: false,
		},
		{
			name:        "no proposals",
			group:       group,
			cfg:         Config{Quorum: QuorumMajority},
			wantReached: false,
		},
		{
			name:  "rejections do not approve",
			group: group,
			proposals: []*models.RankingProposal{
				{ID: "p1", GroupID: "g1", Ranking: ranking, CreatedTime: 100},
			},
			votes: []*models.ProposalVote{
				{ProposalID: "p1", VoterEmail: "a@x", Approve: false},
				{ProposalID: "p1", VoterEmail: "b@x", Approve: false},
				{ProposalID: "p1", VoterEmail: "c@x", Approve: true},
			},
			cfg:         Config{Quorum: QuorumMajority},
			wantReached: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ResolveGroup(tt.group, tt.proposals, tt.votes, tt.cfg)
			if out.Reached != tt.wantReached {
				t.Fatalf("Reached = %v, want %v", out.Reached, tt.wantReached)
			}
			if tt.wantReached {
				if out.Proposal == nil || out.Proposal.ID != tt.wantProposal {
					t.Errorf("winning proposal = %v, want %s", out.Proposal, tt.wantProposal)
				}
				if tt.wantApprovals > 0 && out.Approvals != tt.wantApprovals {
					t.Errorf("Approvals = %d, want %d", out.Approvals, tt.wantApprovals)
				}
			}
		})
	}
}

func TestLatestTeacherRankings(t *testing.T) {
	history := []*models.TeacherRanking{
		{TeacherEmail: "t1@x", GroupID: "g1", Rank: 2, CreatedTime: 100},
		{TeacherEmail: "t1@x", GroupID: "g1", Rank: 1, CreatedTime: 200},
		{TeacherEmail: "t1@x", GroupID: "g2", Rank: 2, CreatedTime: 150},
		{TeacherEmail: "t2@x", GroupID: "g1", Rank: 2, CreatedTime: 300},
	}
	latest := LatestTeacherRankings(history)
	if len(latest) != 3 {
		t.Fatalf("got %d entries, want 3", len(latest))
	}
	for _, r := range latest {
		if r.TeacherEmail == "t1@x" && r.GroupID == "g1" && r.Rank != 1 {
			t.Errorf("t1/g1 rank = %d, want latest rank 1", r.Rank)
		}
	}
}

func TestResolveStage(t *testing.T) {
	groups := []*models.Group{
		testGroup("g1", "a@x", "b@x"),
		testGroup("g2", "c@x", "d@x"),
		testGroup("g3", "e@x", "f@x"),
	}

	t.Run("unanimous student consensus orders by agreed ranking", func(t *testing.T) {
		agreed := map[string]int{"g2": 1, "g1": 2, "g3": 3}
		outcomes := map[string]*models.GroupConsensus{
			"g1": {GroupID: "g1", Reached: true, Proposal: &models.RankingProposal{ID: "p1", Ranking: agreed}},
			"g2": {GroupID: "g2", Reached: true, Proposal: &models.RankingProposal{ID: "p2", Ranking: agreed}},
			"g3": {GroupID: "g3", Reached: true, Proposal: &models.RankingProposal{ID: "p3", Ranking: agreed}},
		}
		res := ResolveStage(groups, outcomes, nil, DefaultConfig())
		if res.Ranks["g2"] != 1 || res.Ranks["g1"] != 2 || res.Ranks["g3"] != 3 {
			t.Errorf("ranks = %v, want g2=1 g1=2 g3=3", res.Ranks)
		}
		if len(res.NoConsensus) != 0 {
			t.Errorf("NoConsensus = %v, want empty", res.NoConsensus)
		}
	})

	t.Run("teacher rankings tip a student tie", func(t *testing.T) {
		// g1 and g2 swap first place in the two student votes; the teacher
		// prefers g2.
		outcomes := map[string]*models.GroupConsensus{
			"g1": {GroupID: "g1", Reached: true, Proposal: &models.RankingProposal{
				ID: "p1", Ranking: map[string]int{"g1": 1, "g2": 2, "g3": 3}}},
			"g2": {GroupID: "g2", Reached: true, Proposal: &models.RankingProposal{
				ID: "p2", Ranking: map[string]int{"g2": 1, "g1": 2, "g3": 3}}},
		}
		teacher := []*models.TeacherRanking{
			{TeacherEmail: "t@x", GroupID: "g2", Rank: 1, CreatedTime: 100},
			{TeacherEmail: "t@x", GroupID: "g1", Rank: 2, CreatedTime: 100},
			{TeacherEmail: "t@x", GroupID: "g3", Rank: 3, CreatedTime: 100},
		}
		res := ResolveStage(groups, outcomes, teacher, DefaultConfig())
		if res.Ranks["g2"] != 1 {
			t.Errorf("g2 rank = %d, want 1 (teacher tiebreak)", res.Ranks["g2"])
		}
		if res.Ranks["g1"] != 2 {
			t.Errorf("g1 rank = %d, want 2", res.Ranks["g1"])
		}
		if len(res.NoConsensus) != 1 || res.NoConsensus[0] != "g3" {
			t.Errorf("NoConsensus = %v, want [g3]", res.NoConsensus)
		}
	})

	t.Run("equal scores share a rank", func(t *testing.T) {
		agreed := map[string]int{"g1": 1, "g2": 1, "g3": 3}
		outcomes := map[string]*models.GroupConsensus{
			"g1": {GroupID: "g1", Reached: true, Proposal: &models.RankingProposal{ID: "p1", Ranking: agreed}},
			"g2": {GroupID: "g2", Reached: true, Proposal: &models.RankingProposal{ID: "p2", Ranking: agreed}},
			"g3": {GroupID: "g3", Reached: true, Proposal: &models.RankingProposal{ID: "p3", Ranking: agreed}},
		}
		res := ResolveStage(groups, outcomes, nil, DefaultConfig())
		if res.Ranks["g1"] != 1 || res.Ranks["g2"] != 1 {
			t.Errorf("ranks = %v, want g1 and g2 tied at 1", res.Ranks)
		}
		if res.Ranks["g3"] != 3 {
			t.Errorf("g3 rank = %d, want 3 (occupied slots)", res.Ranks["g3"])
		}
	})

	t.Run("no consensus anywhere lists every group", func(t *testing.T) {
		outcomes := map[string]*models.GroupConsensus{
			"g1": {GroupID: "g1"},
			"g2": {GroupID: "g2"},
			"g3": {GroupID: "g3"},
		}
		res := ResolveStage(groups, outcomes, nil, DefaultConfig())
		if len(res.NoConsensus) != 3 {
			t.Errorf("NoConsensus = %v, want all three groups", res.NoConsensus)
		}
	})
}

func TestQuorumFor(t *testing.T) {
	tests := []struct {
		quorum  string
		members int
		want    int
	}{
		{QuorumMajority, 3, 2},
		{QuorumMajority, 4, 3},
		{QuorumMajority, 1, 1},
		{QuorumAll, 3, 3},
		{QuorumAll, 1, 1},
	}
	for _, tt := range tests {
		cfg := Config{Quorum: tt.quorum}
		if got := cfg.quorumFor(tt.members); got != tt.want {
			t.Errorf("quorumFor(%s, %d) = %d, want %d", tt.quorum, tt.members, got, tt.want)
		}
	}
}
