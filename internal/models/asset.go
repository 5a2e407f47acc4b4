package models

// Asset is a non-page node processed by an asset pipeline.
type Asset struct {
	ID   NodeID
	Kind NodeKind
	// Source is an absolute local path or a URL.
	Source   string
	Local    bool
	Optimize bool
}

// Artifact is the transformed output of an asset.
type Artifact struct {
	ID     NodeID
	Data   []byte
	Output string // relative to the output root, e.g. assets/1a2b3c.webp
	Hash   string // hash of the source bytes
}
