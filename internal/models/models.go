// Package models holds the data types shared across the memory store:
// Memory, Pattern, IndexRecord, and their closed enums. Cross-references
// (Memory.RelatesTo, Pattern.Evidence) are id strings, never object graphs;
// resolution happens on demand through IndexService.
package models

import "time"

// Status is a Memory's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusArchived  Status = "archived"
	StatusTombstone Status = "tombstone"
)

// PatternType classifies a distilled Pattern.
type PatternType string

const (
	PatternSuccess     PatternType = "success"
	PatternAntiPattern PatternType = "anti_pattern"
	PatternWorkflow    PatternType = "workflow"
	PatternDecision    PatternType = "decision"
	PatternTechnical   PatternType = "technical"
)

// PatternStatus is a Pattern's candidate/validated/promoted/deprecated state.
type PatternStatus string

const (
	PatternCandidate  PatternStatus = "candidate"
	PatternValidated  PatternStatus = "validated"
	PatternPromoted   PatternStatus = "promoted"
	PatternDeprecated PatternStatus = "deprecated"
)

// Memory is one note attached to one commit.
type Memory struct {
	ID        string    `json:"id"`
	CommitSHA string    `json:"commit_sha"`
	Index     int       `json:"index"`
	Namespace string    `json:"namespace"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Spec      string    `json:"spec,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Status    Status    `json:"status"`
	RelatesTo []string  `json:"relates_to,omitempty"`
}

// Pattern is a distilled observation mined from a cluster of memories.
type Pattern struct {
	Name             string        `json:"name"`
	Type             PatternType   `json:"pattern_type"`
	Description      string        `json:"description"`
	Tags             []string      `json:"tags,omitempty"`
	Evidence         []string      `json:"evidence"`
	Confidence       float64       `json:"confidence"`
	Status           PatternStatus `json:"status"`
	FirstSeen        time.Time     `json:"first_seen"`
	LastSeen         time.Time     `json:"last_seen"`
	OccurrenceCount  int           `json:"occurrence_count"`
}

// IndexRecord is the row IndexService persists: a Memory plus its vector
// and the flattened text FTS indexes.
type IndexRecord struct {
	Memory
	Embedding []float32 `json:"embedding"`
	BodyText  string    `json:"body_text"`
}

// SyncCheckpoint is the single row tracking sync progress.
type SyncCheckpoint struct {
	LastCommitSHA string
}

// MemoryResult pairs a Memory with a retrieval-time score, used by search
// and recall return shapes.
type MemoryResult struct {
	Memory     Memory
	Distance   float64
	Similarity float64
}

// HydrationLevel controls how much ancillary data accompanies a Memory.
type HydrationLevel string

const (
	HydrationSummary HydrationLevel = "summary"
	HydrationFull    HydrationLevel = "full"
	HydrationFiles   HydrationLevel = "files"
)

// CommitInfo is the subset of commit metadata RecallService hydrates.
type CommitInfo struct {
	SHA       string
	Author    string
	Message   string
	Timestamp time.Time
}

// HydratedMemory augments a Memory with optional ancillary fields loaded
// per HydrationLevel.
type HydratedMemory struct {
	Memory    Memory
	RawNote   string
	Commit    *CommitInfo
	Files     map[string]string
}

// SpecContext aggregates every memory for a spec grouped by namespace.
type SpecContext struct {
	Spec             string
	ByNamespace      map[string][]Memory
	EstimatedTokens  int
}
