package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clowdy-platform/engine/internal/engine"
	"github.com/clowdy-platform/engine/internal/httperr"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/prometrics"
	"github.com/clowdy-platform/engine/internal/route"
	"github.com/clowdy-platform/engine/internal/store"
)

// gatewayEvent is the object handed to a function invoked through the
// dynamic project gateway, mirroring original_source/backend/app/routers/
// gateway.py's event shape.
type gatewayEvent struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Params  map[string]string `json:"params"`
	Query   map[string]string `json:"query"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	path := "/" + chi.URLParam(r, "*")

	project, err := s.meta.GetProjectBySlug(slug)
	if err != nil {
		if err == metadata.ErrNotFound {
			httperr.NotFound(w, "project not found")
			return
		}
		httperr.Internal(w, err.Error())
		return
	}

	table, err := s.routeTableFor(project.ID)
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}
	if table == nil {
		prometrics.RecordGatewayDispatch(project.ID, "no_routes")
		httperr.NotFound(w, "no routes configured for this project")
		return
	}

	match, ok := table.Match(r.Method, path)
	if !ok {
		prometrics.RecordGatewayDispatch(project.ID, "no_match")
		httperr.NotFound(w, "no route matches "+r.Method+" "+path)
		return
	}

	fn, err := s.meta.GetFunctionByID(match.Route.FunctionID)
	if err != nil || fn.Status != metadata.FunctionStatusActive {
		prometrics.RecordGatewayDispatch(project.ID, "unavailable")
		httperr.ServiceUnavailable(w, "the function for this route is not available")
		return
	}

	event, err := s.buildEvent(w, r, path, match.Params)
	if err != nil {
		httperr.BadRequest(w, err.Error())
		return
	}

	inputJSON, err := engine.MarshalInput(event)
	if err != nil {
		httperr.Internal(w, err.Error())
		return
	}

	result, err := s.eng.Run(r.Context(), engine.Request{
		Function:   fn,
		Project:    project,
		InputJSON:  inputJSON,
		Source:     store.SourceGateway,
		HTTPMethod: r.Method,
		HTTPPath:   path,
	})
	if err != nil {
		prometrics.RecordGatewayDispatch(project.ID, "engine_error")
		httperr.Internal(w, err.Error())
		return
	}
	if !result.Success {
		prometrics.RecordGatewayDispatch(project.ID, string(result.Status))
		writeEngineError(w, result)
		return
	}

	prometrics.RecordGatewayDispatch(project.ID, "success")
	writeFunctionResponse(w, result.OutputJSON)
}

// routeTableFor returns a project's compiled route Table, using the
// cache when the underlying rows haven't changed, or nil if the project
// has no routes at all.
func (s *Server) routeTableFor(projectID string) (*route.Table, error) {
	rows, err := s.meta.ListRoutesByProject(projectID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	version := route.ComputeVersion(rows)
	if cached, ok := s.routes.Get(projectID, version); ok {
		return cached, nil
	}

	table, err := route.Compile(projectID, version, rows)
	if err != nil {
		return nil, err
	}
	s.routes.Put(table)
	return table, nil
}

func (s *Server) buildEvent(w http.ResponseWriter, r *http.Request, path string, params map[string]string) (*gatewayEvent, error) {
	query := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[len(v)-1]
		}
	}

	headers := map[string]string{}
	for k, v := range r.Header {
		lower := strings.ToLower(k)
		if lower == "host" || lower == "connection" || lower == "authorization" || lower == "content-length" {
			continue
		}
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	var body any
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		raw, err := readBody(w, r, s.maxBodyBytes)
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			var decoded any
			if jsonErr := json.Unmarshal(raw, &decoded); jsonErr == nil {
				body = decoded
			} else {
				body = string(raw)
			}
		}
	}

	return &gatewayEvent{
		Method:  r.Method,
		Path:    path,
		Params:  params,
		Query:   query,
		Headers: headers,
		Body:    body,
	}, nil
}

// functionResponse is the full response-contract shape a function may
// return to control its HTTP response directly.
type functionResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body"`
}

// writeFunctionResponse honors the {statusCode, headers, body} contract
// when the function's output uses it, otherwise wraps the raw output as
// a 200 JSON response.
func writeFunctionResponse(w http.ResponseWriter, outputJSON string) {
	var asMap map[string]any
	if err := json.Unmarshal([]byte(outputJSON), &asMap); err == nil {
		if _, hasStatusCode := asMap["statusCode"]; hasStatusCode {
			var resp functionResponse
			if err := json.Unmarshal([]byte(outputJSON), &resp); err == nil {
				for k, v := range resp.Headers {
					w.Header().Set(k, v)
				}
				if resp.StatusCode == 0 {
					resp.StatusCode = http.StatusOK
				}

				if body, isString := resp.Body.(string); isString {
					if w.Header().Get("Content-Type") == "" {
						w.Header().Set("Content-Type", "text/plain")
					}
					w.WriteHeader(resp.StatusCode)
					_, _ = w.Write([]byte(body))
					return
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(resp.StatusCode)
				if resp.Body != nil {
					_ = json.NewEncoder(w).Encode(resp.Body)
				}
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(outputJSON))
}
