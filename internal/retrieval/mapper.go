package retrieval

// Scoring defaults.
const (
	DefaultMinConfidence = 0.3
	DefaultKeywordBoost  = 1.5
)

// mapMatches converts one partition's raw matches into chunks.
// Matches below minConfidence or without a numeric score are dropped;
// keyword hits are boosted.
func mapMatches(matches []RawMatch, keywordIDs map[string]struct{}, minConfidence, boost float64) []ContextChunk {
	chunks := make([]ContextChunk, 0, len(matches))
	for _, m := range matches {
		if !(m.Score >= minConfidence) {
			continue
		}
		chunks = append(chunks, toChunk(m, keywordIDs, boost))
	}
	return chunks
}

func toChunk(m RawMatch, keywordIDs map[string]struct{}, boost float64) ContextChunk {
	docID := m.DocumentID
	if docID == "" {
		docID = m.ID
	}
	fileName := m.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}

	_, hit := keywordIDs[docID]
	boosted := m.Score
	if hit {
		boosted = m.Score * boost
	}

	source := ParseSourceType(m.SourceType)
	return ContextChunk{
		ID:             m.ID,
		DocumentID:     docID,
		FileName:       fileName,
		Text:           m.Text,
		SourceType:     source,
		Origin:         source.Origin(),
		Score:          m.Score,
		BoostedScore:   boosted,
		IsKeywordMatch: hit,
		ownerID:        m.RequesterID,
	}
}
