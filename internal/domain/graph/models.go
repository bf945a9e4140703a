package graph

// All lists every persisted graph model, in migration order.
func All() []any {
	return []any{
		&Concept{},
		&ConceptAlias{},
		&Edge{},
		&Source{},
		&Chunk{},
		&ConceptSource{},
		&ReviewItem{},
		&Changeset{},
		&ChangesetItem{},
		&ConceptMerge{},
		&VaultFile{},
	}
}
