// Package pricing holds the static per-model dollar rate table and derives
// request cost from upstream token usage.
package pricing

import "sync/atomic"

// Rate is a model's per-million-token input/output price in USD.
type Rate struct {
	InputPer1M  float64
	OutputPer1M float64
}

// flagshipModel is the fallback rate used for models absent from Table.
const flagshipModel = "llama-3.3-70b-versatile"

// Table is the static model -> rate map. Unknown models fall back to
// Table[flagshipModel].
var Table = map[string]Rate{
	"llama-3.3-70b-versatile": {InputPer1M: 0.59, OutputPer1M: 0.79},
	"llama-3.1-8b-instant":    {InputPer1M: 0.05, OutputPer1M: 0.08},
	"llama3-70b-8192":         {InputPer1M: 0.59, OutputPer1M: 0.79},
	"llama3-8b-8192":          {InputPer1M: 0.05, OutputPer1M: 0.08},
	"gemma2-9b-it":            {InputPer1M: 0.20, OutputPer1M: 0.20},
	"mixtral-8x7b-32768":      {InputPer1M: 0.24, OutputPer1M: 0.24},
	"deepseek-r1-distill-llama-70b": {InputPer1M: 0.75, OutputPer1M: 0.99},
}

// Model prices requests against the package-level Table and keeps a sticky
// flag recording whether fallback pricing has ever been used. Process-
// lifetime, safe for concurrent use.
type Model struct {
	usedFallback atomic.Bool
}

// New returns a fresh cost model with the fallback flag cleared.
func New() *Model {
	return &Model{}
}

// Cost computes the USD cost of a request given its model and prompt/
// completion token counts. If model is absent from Table, the flagship
// model's rate is used and the fallback flag is set (sticky for process
// lifetime).
func (m *Model) Cost(model string, promptTokens, completionTokens int) float64 {
	rate, ok := Table[model]
	if !ok {
		rate = Table[flagshipModel]
		m.usedFallback.Store(true)
	}
	return (float64(promptTokens)*rate.InputPer1M + float64(completionTokens)*rate.OutputPer1M) / 1_000_000
}

// UsedFallback reports whether fallback pricing has been applied to at
// least one observation since process start.
func (m *Model) UsedFallback() bool {
	return m.usedFallback.Load()
}
