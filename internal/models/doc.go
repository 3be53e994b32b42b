// Package models defines the core domain models for Peergrade.
//
// # Entities
//
//   - Transaction: one immutable signed point movement in the ledger
//   - Settlement: a named, reversible batch of transactions produced by one
//     distribution event
//   - Stage: a timed competition phase with a reward pool and a lifecycle
//     status (pending → active → voting → completed)
//   - RankingProposal / ProposalVote: a member's candidate ordering of all
//     competing groups, and per-member approve/reject votes on it
//   - TeacherRanking: a reviewer's direct ranking of one group, kept as
//     history (latest per teacher+group wins)
//   - Group / GroupMember / Submission: read-model snapshots consumed by
//     consensus resolution and point distribution
//
// # Design principles
//
//  1. Transactions and Settlements are append-only facts. The only way to
//     undo a transaction is a new transaction with the inverse amount.
//  2. Balances are never stored; they are always derived by summing
//     transaction amounts.
//  3. Relationships use ID strings, not pointers, to keep rows flat and
//     avoid circular references.
package models
