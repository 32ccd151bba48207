package llmproxy

// ModelEntry describes one allowed model in the proxy's static registry,
// spec.md §4.6: a miner-supplied llm_name resolves to exactly one entry,
// never a fallback — an unknown name is a clean rejection, not a silent
// substitution to a default model.
type ModelEntry struct {
	Provider  string `yaml:"provider"` // "openai" or "anthropic"
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// DefaultRegistry is the fixed set of models containers may request by
// name. Grounded on the original's static model allow-list (spec.md §4.6);
// exact model names are operator-configurable via Server.SetRegistry (fed by
// config.RegistryWatcher), these are
// reasonable stand-ins for the SWE-bench harness's usual choices.
var DefaultRegistry = map[string]ModelEntry{
	"gpt-4o":             {Provider: "openai", Model: "gpt-4o", MaxTokens: 16384},
	"gpt-4o-mini":        {Provider: "openai", Model: "gpt-4o-mini", MaxTokens: 16384},
	"claude-3-5-sonnet":  {Provider: "anthropic", Model: "claude-3-5-sonnet-latest", MaxTokens: 8192},
	"claude-3-5-haiku":   {Provider: "anthropic", Model: "claude-3-5-haiku-latest", MaxTokens: 8192},
}

// DefaultEmbeddingModel is the fixed embeddings target for /embed and
// /embed/batch, which do no per-key counting per spec.md §4.6.
const DefaultEmbeddingModel = "text-embedding-3-small"
