package domain

import (
	"github.com/yungbote/tutorgraph-backend/internal/domain/graph"
)

const (
	EdgePrerequisiteOf = graph.EdgePrerequisiteOf
	EdgePartOf         = graph.EdgePartOf
	EdgeUsedIn         = graph.EdgeUsedIn
	EdgeContrastsWith  = graph.EdgeContrastsWith
	EdgeAddresses      = graph.EdgeAddresses
	EdgeInstanceOf     = graph.EdgeInstanceOf
	EdgeRelatedTo      = graph.EdgeRelatedTo

	ChangesetDraft    = graph.ChangesetDraft
	ChangesetApplied  = graph.ChangesetApplied
	ChangesetRejected = graph.ChangesetRejected

	ItemPending  = graph.ItemPending
	ItemAccepted = graph.ItemAccepted
	ItemRejected = graph.ItemRejected
	ItemApplied  = graph.ItemApplied

	EntityConcept = graph.EntityConcept
	EntityEdge    = graph.EntityEdge
	EntityFile    = graph.EntityFile

	ActionCreate = graph.ActionCreate
	ActionPatch  = graph.ActionPatch
)

type (
	Concept        = graph.Concept
	ConceptSummary = graph.ConceptSummary
	ConceptAlias   = graph.ConceptAlias
	Edge           = graph.Edge
	EdgeSummary    = graph.EdgeSummary
	Source         = graph.Source
	Chunk          = graph.Chunk
	ConceptSource  = graph.ConceptSource
	ReviewItem     = graph.ReviewItem
	Changeset      = graph.Changeset
	ChangesetItem  = graph.ChangesetItem
	ConceptMerge   = graph.ConceptMerge
	MergeSnapshot  = graph.MergeSnapshot
	VaultFile      = graph.VaultFile

	Payload          = graph.Payload
	ConceptPayload   = graph.ConceptPayload
	EdgePayload      = graph.EdgePayload
	FilePatchPayload = graph.FilePatchPayload
)

var (
	IsEdgeType    = graph.IsEdgeType
	DecodePayload = graph.DecodePayload
	Strings       = graph.Strings
	JSONStrings   = graph.JSONStrings
	JSONValue     = graph.JSONValue
	AllModels     = graph.All
)
