package pipeline

// Response is the wire form of a Result used by the HTTP API, MCP tools and
// the NATS worker.
type Response struct {
	RunID    string        `json:"run_id"`
	Answer   string        `json:"answer"`
	Empty    bool          `json:"empty"`
	Chunks   int           `json:"chunks"`
	Contexts []ContextView `json:"contexts"`
}

// ContextView is one retrieved chunk.
type ContextView struct {
	ID    string  `json:"id"`
	Index int     `json:"index"`
	Score float32 `json:"score"`
	Text  string  `json:"text"`
}

// ErrorResponse is the wire form of a failure.
type ErrorResponse struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewErrorResponse classifies err.
func NewErrorResponse(err error) *ErrorResponse {
	return &ErrorResponse{Kind: Classify(err), Message: err.Error()}
}

// NewResponse converts a Result.
func NewResponse(res *Result) *Response {
	out := &Response{
		RunID:    res.RunID,
		Answer:   res.Answer,
		Empty:    res.Empty,
		Chunks:   res.Chunks,
		Contexts: make([]ContextView, len(res.Hits)),
	}
	for i, h := range res.Hits {
		out.Contexts[i] = ContextView{ID: h.Chunk.ID, Index: h.Chunk.Index, Score: h.Score, Text: h.Chunk.Text}
	}
	return out
}
