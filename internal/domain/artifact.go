package domain

// KeyPrefix namespaces every key this service touches in the backing store.
const KeyPrefix = "recserve:"

// Space is the distance space an index was built in.
type Space string

const (
	// SpaceCosine is cosine distance.
	SpaceCosine Space = "cosine"
	// SpaceL2 is euclidean distance.
	SpaceL2 Space = "l2"
)

// ValidSpace reports whether s is a supported distance space.
func ValidSpace(s Space) bool {
	return s == SpaceCosine || s == SpaceL2
}

// IndexArtifact is the immutable metadata of one published ANN index version.
// A new version is a new value; artifacts are never mutated after publication.
// The offline build process owns creation; the serving path only reads.
type IndexArtifact struct {
	IndexVersion     string
	EmbeddingVersion string
	Dim              int
	Space            Space
}
