package constants

// Strategy names how a document was extracted; used as the key of cost breakdowns.
type Strategy string

// Stable values (stored as-is in the results table).
const (
	StrategyLLMVision Strategy = "llm_vision" // image sent to a vision model
	StrategyLLMText   Strategy = "llm_text"   // text (txt or pdf text layer) sent to a model
	StrategyNone      Strategy = "none"       // failed before reaching a model
)
