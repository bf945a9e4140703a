package realtime

import "time"

const (
	EventChangesetApplied = "changeset.applied"
	EventMergeApplied     = "merge.applied"
	EventMergeUndone      = "merge.undone"
)

// GraphEvent announces a committed graph mutation to other processes.
type GraphEvent struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	ConceptIDs []string  `json:"concept_ids,omitempty"`
	EdgeIDs    []string  `json:"edge_ids,omitempty"`
	FilePaths  []string  `json:"file_paths,omitempty"`
	At         time.Time `json:"at"`
}
