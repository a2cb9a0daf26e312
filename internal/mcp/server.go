// Package mcp exposes the phonetic scoring core as Model Context Protocol
// tools, so that assistants and agents can normalize text, convert it to
// phonemic form and score a pronunciation without going through the REST API.
//
// The tools are served over the MCP streamable HTTP transport:
//
//	srv := mcp.NewServer(converter, mcp.WithGrading(c.Grader))
//	mux.Handle("/mcp", srv.Handler())
package mcp

import (
	"context"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/phonocoach/internal/coach"
	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

// Tool names.
const (
	ToolNormalize     = "normalize"
	ToolToPhonemic    = "to_phonemic"
	ToolAlignAndScore = "align_and_score"
)

// Server is an MCP server carrying the phonocoach tools.
type Server struct {
	sdk       *mcpsdk.Server
	converter g2p.Provider
	grading   func() coach.Grader
	metrics   *observe.Metrics
	version   string
}

// Option configures a [Server].
type Option func(*Server)

// WithGrading sets the source of the grade thresholds. It is called on every
// scoring request so hot-reloaded thresholds apply. The default is
// [coach.DefaultGrader].
func WithGrading(fn func() coach.Grader) Option {
	return func(s *Server) { s.grading = fn }
}

// WithMetrics records tool calls on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the implementation version reported during the MCP
// handshake.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a [Server]. converter backs the to_phonemic tool and the
// from_text mode of align_and_score; when nil, those fail with a tool error.
func NewServer(converter g2p.Provider, opts ...Option) *Server {
	s := &Server{
		converter: converter,
		grading:   coach.DefaultGrader,
		version:   "dev",
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.sdk = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "phonocoach", Version: s.version}, nil)
	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        ToolNormalize,
		Description: "Normalize text the way the pronunciation scorer does: lower-case, punctuation removed, whitespace collapsed.",
	}, instrument(s, ToolNormalize, s.normalize))
	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        ToolToPhonemic,
		Description: "Convert English text to its phonemic (IPA) form.",
	}, instrument(s, ToolToPhonemic, s.toPhonemic))
	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name: ToolAlignAndScore,
		Description: "Align a recognized phonemic string against a target, returning a 0-100 score, " +
			"a grade and the recognized string with mismatches marked.",
	}, instrument(s, ToolAlignAndScore, s.alignAndScore))
	return s
}

// SDK returns the underlying MCP server, e.g. to connect it to a custom
// transport.
func (s *Server) SDK() *mcpsdk.Server { return s.sdk }

// Handler returns an [http.Handler] serving the tools over the streamable
// HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}

// instrument wraps a typed tool handler with a span, a log line and the tool
// call counter.
func instrument[In, Out any](s *Server, name string, fn func(context.Context, In) (Out, error)) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		ctx, span := observe.StartSpan(ctx, "mcp "+name)
		start := time.Now()
		out, err := fn(ctx, in)
		observe.EndSpan(span, err)

		status := "ok"
		log := observe.Logger(ctx).With("tool", name, "duration", time.Since(start))
		if err != nil {
			status = "error"
			log.Info("mcp tool call failed", "err", err)
		} else {
			log.Debug("mcp tool call")
		}
		s.metrics.RecordToolCall(ctx, name, status)
		return nil, out, err
	}
}
