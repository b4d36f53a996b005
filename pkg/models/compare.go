package models

type ResultState string

const (
	ResultPending ResultState = "pending"
	ResultDone    ResultState = "done"
	ResultFailed  ResultState = "failed"
)

// ComparisonResult holds one model's answer in a comparison. It is transient
// and never persisted.
type ComparisonResult struct {
	Model    *Model      `json:"-"`
	ModelID  string      `json:"model_id"`
	Response string      `json:"response"`
	State    ResultState `json:"state"`
	Error    string      `json:"error,omitempty"`
}

func PendingResults(ms []*Model) []ComparisonResult {
	out := make([]ComparisonResult, len(ms))
	for i, m := range ms {
		out[i] = ComparisonResult{Model: m, ModelID: m.ID, State: ResultPending}
	}
	return out
}

func (r ComparisonResult) Settled() bool {
	return r.State != ResultPending
}
