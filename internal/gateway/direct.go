package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clowdy-platform/engine/internal/engine"
	"github.com/clowdy-platform/engine/internal/httperr"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/store"
)

// directInvokeResponse is the Direct Invoker's (C6) response contract.
type directInvokeResponse struct {
	Success      bool   `json:"success"`
	Output       any    `json:"output,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
	InvocationID string `json:"invocation_id"`
}

func (s *Server) handleDirectInvoke(w http.ResponseWriter, r *http.Request) {
	functionID := chi.URLParam(r, "functionID")

	fn, err := s.meta.GetFunctionByID(functionID)
	if err != nil {
		if err == metadata.ErrNotFound {
			httperr.NotFound(w, "function not found")
			return
		}
		httperr.Internal(w, err.Error())
		return
	}

	raw, err := readBody(w, r, s.maxBodyBytes)
	if err != nil {
		httperr.BadRequest(w, err.Error())
		return
	}

	envelope := struct {
		Input any `json:"input"`
	}{Input: map[string]any{}}
	if len(raw) > 0 {
		if !json.Valid(raw) {
			httperr.BadRequest(w, "request body must be valid JSON")
			return
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			httperr.BadRequest(w, "request body must be a JSON object with an \"input\" field")
			return
		}
	}

	inputJSON, err := engine.MarshalInput(envelope.Input)
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}

	var project *metadata.Project
	if fn.ProjectID != "" {
		project, err = s.meta.GetProjectByID(fn.ProjectID)
		if err != nil && err != metadata.ErrNotFound {
			httperr.Internal(w, err.Error())
			return
		}
	}

	result, err := s.eng.Run(r.Context(), engine.Request{
		Function:  fn,
		Project:   project,
		InputJSON: inputJSON,
		Source:    store.SourceDirect,
	})
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}

	resp := directInvokeResponse{
		Success:      result.Success,
		DurationMS:   result.DurationMS,
		InvocationID: result.InvocationID,
	}
	if result.Success {
		var decoded any
		if err := json.Unmarshal([]byte(result.OutputJSON), &decoded); err == nil {
			resp.Output = decoded
		}
	} else {
		resp.Error = decodeErrorMessage(result.OutputJSON)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	functionID := chi.URLParam(r, "functionID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	invocations, err := s.records.ListForFunction(functionID, limit)
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(invocations)
}
