package llm

// DefaultMaxTokens caps a reply when the prompt leaves MaxTokens unset.
const DefaultMaxTokens = 256

// Prompt is a single-turn request whose answer must be one JSON object.
// Providers always request JSON output and sample at temperature zero so
// that repeated judgements of the same text agree.
type Prompt struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

func (p Prompt) maxTokens() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return DefaultMaxTokens
}

// Reply is the raw JSON text a provider returned and the model that wrote it.
type Reply struct {
	Content string
	Model   string
}
