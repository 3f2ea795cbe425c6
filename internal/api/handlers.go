package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/specgen"
)

// bindRequest decodes and validates the discovery request body. On
// failure it writes the 400 response itself and returns false.
func (s *Server) bindRequest(c *gin.Context) (*param.Request, bool) {
	var req param.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

// handleDiscover runs the pipeline and returns the result document. A
// runner failure still answers 200 with a degraded document so clients
// never have to parse two shapes.
func (s *Server) handleDiscover(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}

	result, err := s.runner(c.Request.Context(), req)
	if err != nil {
		s.log.WithURL(req.URL).WithError(err).Warn("Discovery run failed")
		c.JSON(http.StatusOK, degradedResult(req, err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleSpec runs the pipeline and renders the result as an OpenAPI
// document.
func (s *Server) handleSpec(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}

	result, err := s.runner(c.Request.Context(), req)
	if err != nil {
		s.log.WithURL(req.URL).WithError(err).Warn("Spec generation failed")
		c.JSON(http.StatusOK, emptySpec(err))
		return
	}
	c.JSON(http.StatusOK, specgen.Generate(result))
}

// handleHistory serves stored runs: all of them, or a single endpoint
// when the url query parameter is set.
func (s *Server) handleHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store not configured"})
		return
	}

	if url := c.Query("url"); url != "" {
		method := c.DefaultQuery("method", param.DefaultMethod)
		rec, err := s.store.Load(url, method)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no stored result for endpoint"})
			return
		}
		c.JSON(http.StatusOK, rec)
		return
	}

	records, err := s.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// degradedResult shapes a run failure like a normal result document with
// one orchestration-level partial failure.
func degradedResult(req *param.Request, err error) *param.DiscoveryResult {
	return &param.DiscoveryResult{
		URL:        req.URL,
		Method:     req.Method,
		Parameters: []param.Parameter{},
		Meta: param.Meta{
			PartialFailures: 1,
			Failures: []param.PartialFailure{{
				Phase:     "orchestration",
				Operation: "run",
				Message:   err.Error(),
			}},
			DiscoveryVersion:    param.DiscoveryVersion,
			OrchestrationPhases: param.OrchestrationPhases(),
			TimeBudgetSeconds:   req.TimeoutSeconds,
		},
	}
}

// emptySpec is the OpenAPI analog of degradedResult: a valid but empty
// document carrying the failure.
func emptySpec(err error) map[string]any {
	return map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":       "Inferred API Spec",
			"version":     "0.1.0",
			"description": "Spec generation failed: " + err.Error(),
		},
		"paths": map[string]any{},
		"error": err.Error(),
	}
}
