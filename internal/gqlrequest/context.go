package gqlrequest

import (
	"context"
	"net/http"
)

type analysisKey struct{}

// WithAnalysis stores a request analysis in ctx.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return context.WithValue(ctx, analysisKey{}, analysis)
}

// AnalysisFromContext returns the analysis stored by WithAnalysis, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	analysis, _ := ctx.Value(analysisKey{}).(*Analysis)
	return analysis
}

// ForRequest returns the analysis already attached to r, analyzing r when there is none.
func ForRequest(r *http.Request) *Analysis {
	if analysis := AnalysisFromContext(r.Context()); analysis != nil {
		return analysis
	}
	return AnalyzeRequest(r)
}
