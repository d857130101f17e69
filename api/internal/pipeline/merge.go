package pipeline

// MergePolicy controls what happens when a new submission's canonical text
// hashes onto an already cached question: whether the fresher OCR text and
// analysis replace the stored ones. The fingerprint set grows either way.
type MergePolicy string

const (
	// MergeOverwrite replaces stored text and analysis with the newer read.
	MergeOverwrite MergePolicy = "overwrite"
	// MergeKeepFirst keeps the first admitted version and only grows the
	// fingerprint set.
	MergeKeepFirst MergePolicy = "keep_first"
)

func ParseMergePolicy(s string) MergePolicy {
	if MergePolicy(s) == MergeKeepFirst {
		return MergeKeepFirst
	}
	return MergeOverwrite
}
