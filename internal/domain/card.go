package domain

// SourceCard is a question-answer-context entry read from a markdown source.
type SourceCard struct {
	Question string
	Answer   string
	Context  string
	// Path is the file the entry was read from.
	Path string
}
