package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

type clinicalAskInput struct {
	NotePath   string `json:"note_path" jsonschema:"Path to the clinical note (.txt, .md, .pdf or EHR .json) or an s3:// URI"`
	Query      string `json:"query" jsonschema:"Question to answer from the note"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"Number of chunks to retrieve (default 3)"`
	MaxTokens  int    `json:"max_tokens,omitempty" jsonschema:"Approximate tokens per chunk (default 300)"`
	Rerank     bool   `json:"rerank,omitempty" jsonschema:"Reorder retrieved chunks by term overlap with the query"`
	Deidentify bool   `json:"deidentify,omitempty" jsonschema:"Redact PHI from the note before indexing"`
}

type literatureAskInput struct {
	Query      string `json:"query" jsonschema:"PubMed search term and question"`
	Email      string `json:"email,omitempty" jsonschema:"Contact email sent to NCBI (defaults to the configured address)"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"Number of abstracts to use as context (default 3)"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum PubMed hits to fetch (default 10)"`
	Rerank     bool   `json:"rerank,omitempty" jsonschema:"Reorder retrieved abstracts by term overlap with the query"`
}

type deidentifyInput struct {
	Text string `json:"text" jsonschema:"Free text to de-identify"`
}

type deidentifyOutput struct {
	Text          string         `json:"text"`
	FindingsCount int            `json:"findings_count"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// registerTools registers every MCP tool with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clinical_ask",
		Description: "Answer a question grounded in a single clinical note or EHR record",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args clinicalAskInput) (*mcp.CallToolResult, pipeline.Response, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "clinical_ask")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "clinical_ask")
			s.metrics.RecordInvocation(ctx, "clinical_ask", time.Since(start), toolErr)
		}()

		run := pipeline.ClinicalRequest{
			NotePath:   args.NotePath,
			Query:      args.Query,
			TopK:       args.TopK,
			MaxTokens:  args.MaxTokens,
			Rerank:     args.Rerank,
			Deidentify: args.Deidentify,
		}
		run.ApplyDefaults(s.defaults)

		res, err := s.runner.Clinical(ctx, run)
		if err != nil {
			toolErr = err
			return nil, pipeline.Response{}, s.toolError(ctx, "clinical_ask", err)
		}

		out := pipeline.NewResponse(res)
		return answerResult(out), *out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "literature_ask",
		Description: "Search PubMed and answer a question grounded in the retrieved abstracts",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args literatureAskInput) (*mcp.CallToolResult, pipeline.Response, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "literature_ask")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "literature_ask")
			s.metrics.RecordInvocation(ctx, "literature_ask", time.Since(start), toolErr)
		}()

		run := pipeline.LiteratureRequest{
			Query:      args.Query,
			Email:      args.Email,
			TopK:       args.TopK,
			MaxResults: args.MaxResults,
			Rerank:     args.Rerank,
		}
		run.ApplyDefaults(s.defaults)

		res, err := s.runner.Literature(ctx, run)
		if err != nil {
			toolErr = err
			return nil, pipeline.Response{}, s.toolError(ctx, "literature_ask", err)
		}

		out := pipeline.NewResponse(res)
		return answerResult(out), *out, nil
	})

	if s.redactor == nil {
		return
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "deidentify",
		Description: "Redact protected health information and credentials from text",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args deidentifyInput) (*mcp.CallToolResult, deidentifyOutput, error) {
		start := time.Now()
		var toolErr error
		defer func() {
			s.metrics.RecordInvocation(ctx, "deidentify", time.Since(start), toolErr)
		}()

		if strings.TrimSpace(args.Text) == "" {
			toolErr = fmt.Errorf("%w: text is required", pipeline.ErrInvalidRequest)
			return nil, deidentifyOutput{}, s.toolError(ctx, "deidentify", toolErr)
		}

		res := s.redactor.Redact(args.Text)
		out := deidentifyOutput{
			Text:          res.Text,
			FindingsCount: len(res.Findings),
			ByRule:        res.ByRule,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
		}, out, nil
	})
}

// answerResult renders the answer followed by the retrieved context IDs.
func answerResult(resp *pipeline.Response) *mcp.CallToolResult {
	var b strings.Builder
	b.WriteString(resp.Answer)
	if len(resp.Contexts) > 0 {
		b.WriteString("\n\nSources:")
		for _, c := range resp.Contexts {
			fmt.Fprintf(&b, "\n- %s (score %.3f)", c.ID, c.Score)
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}
}

// toolError prefixes err with its failure class so clients can branch on it.
func (s *Server) toolError(ctx context.Context, tool string, err error) error {
	kind := pipeline.Classify(err)
	s.logger.Warn(ctx, "tool failed",
		zap.String("tool", tool),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %w", kind, err)
}
