package model

// Proposal is the structured album grouping produced by the AI adapter
// or by the fallback policy. It is stored verbatim on the job as
// result_data when the job completes.
type Proposal struct {
	Albums []ProposedAlbum `json:"albums"`
}

// ProposedAlbum is one entry of a proposal: a title, a theme
// description, and the storage keys of the images assigned to it.
type ProposedAlbum struct {
	Title     string   `json:"title"`
	Theme     string   `json:"theme"`
	ImageKeys []string `json:"image_keys"`
}
