// Package stub serves the LCA application's JSON-RPC IPC protocol from an
// in-memory dataset. It backs tests and local dry runs of lcarun.
package stub

import (
	"context"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/lcarun/internal/adapters/ipc"
	"github.com/okian/lcarun/internal/domain/schema"
	"github.com/okian/lcarun/pkg/logger"
	"github.com/okian/lcarun/pkg/metrics"
)

// Server answers JSON-RPC calls against a Dataset.
type Server struct {
	mu      sync.Mutex
	dataset *Dataset
	results map[string]*calculation

	readyAfter       int
	disposeSupported bool
	logger           logger.Logger
}

// calculation is a scheduled or finished result held by the stub.
type calculation struct {
	id         string
	target     ProcessSpec
	method     MethodSpec
	amount     float64
	polls      int
	simulation bool
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithDataset replaces the default dataset.
func WithDataset(ds *Dataset) Option {
	return func(s *Server) {
		if ds != nil {
			s.dataset = ds
		}
	}
}

// WithReadyAfter sets how many state polls a calculation needs before it
// reports ready. Zero makes results ready on submission.
func WithReadyAfter(polls int) Option {
	return func(s *Server) {
		if polls >= 0 {
			s.readyAfter = polls
		}
	}
}

// WithDispose toggles support for result/dispose. Without it the stub
// answers like an older application that lacks the method.
func WithDispose(enabled bool) Option {
	return func(s *Server) {
		s.disposeSupported = enabled
	}
}

// WithLogger sets a custom logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a stub server.
func New(opts ...Option) *Server {
	s := &Server{
		dataset:          DefaultDataset(),
		results:          make(map[string]*calculation),
		readyAfter:       2,
		disposeSupported: true,
		logger:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches the stub routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(NewHealthHandler().HandleHealth, "healthz"))
	mux.HandleFunc("/", MetricsMiddleware(s.HandleRPC, "rpc"))
}

// Handler returns a mux with all stub routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Open returns the number of results not yet disposed.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// HandleRPC handles POST / JSON-RPC requests.
func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ipc.Response{
			JSONRPC: ipc.Version,
			Error:   &ipc.ErrorObject{Code: ipc.CodeInvalidRequest, Message: "POST required"},
		})
		return
	}

	var req ipc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, ipc.Response{
			JSONRPC: ipc.Version,
			Error:   &ipc.ErrorObject{Code: ipc.CodeParseError, Message: err.Error()},
		})
		return
	}

	result, rpcErr := s.dispatch(r.Context(), req)
	resp := ipc.Response{JSONRPC: ipc.Version, ID: req.ID, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = rpcError(ipc.CodeInternalError, err.Error())
		} else {
			resp.Result = raw
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) dispatch(ctx context.Context, req ipc.Request) (any, *ipc.ErrorObject) {
	s.logger.Debug(ctx, "stub rpc", logger.String("method", req.Method))

	switch req.Method {
	case ipc.MethodGetDescriptor:
		return s.getDescriptor(req.Params)
	case ipc.MethodGetDescriptors:
		return s.getDescriptors(req.Params)
	case ipc.MethodCalculate:
		return s.calculate(req.Params, false)
	case ipc.MethodSimulate:
		return s.calculate(req.Params, true)
	case ipc.MethodState:
		return s.state(req.Params)
	case ipc.MethodImpactCategories:
		return s.impactCategories(req.Params)
	case ipc.MethodTechFlows:
		return s.techFlows(req.Params)
	case ipc.MethodTotalImpactValueOf:
		return s.totalImpactValueOf(req.Params)
	case ipc.MethodDispose:
		if !s.disposeSupported {
			break
		}
		return s.dispose(req.Params)
	}
	return nil, rpcError(ipc.CodeMethodNotFound, "unknown method: "+req.Method)
}

type descriptorRequest struct {
	Type string `json:"@type"`
	ID   string `json:"@id"`
	Name string `json:"name"`
}

type resultRequest struct {
	ID string `json:"@id"`
}

type impactValueRequest struct {
	ID             string          `json:"@id"`
	ImpactCategory schema.Ref      `json:"impactCategory"`
	TechFlow       schema.TechFlow `json:"techFlow"`
}

func (s *Server) getDescriptor(params json.RawMessage) (any, *ipc.ErrorObject) {
	var p descriptorRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if !knownType(p.Type) {
		return nil, rpcError(ipc.CodeBadRequest, "unsupported type: "+p.Type)
	}
	if p.ID == "" && p.Name == "" {
		return nil, rpcError(ipc.CodeBadRequest, "@id or name required")
	}

	ref, ok := s.dataset.descriptor(schema.RefType(p.Type), p.ID, p.Name)
	if !ok {
		return nil, rpcError(ipc.CodeNotFound, "no "+p.Type+" found")
	}
	return ref, nil
}

func (s *Server) getDescriptors(params json.RawMessage) (any, *ipc.ErrorObject) {
	var p descriptorRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if !knownType(p.Type) {
		return nil, rpcError(ipc.CodeBadRequest, "unsupported type: "+p.Type)
	}
	refs := s.dataset.descriptors(schema.RefType(p.Type))
	if refs == nil {
		refs = []schema.Ref{}
	}
	return refs, nil
}

func (s *Server) calculate(params json.RawMessage, simulation bool) (any, *ipc.ErrorObject) {
	var setup schema.CalculationSetup
	if err := decodeParams(params, &setup); err != nil {
		return nil, err
	}

	target, ok := s.dataset.process(setup.Target.ID)
	if !ok {
		return nil, rpcError(ipc.CodeNotFound, "calculation target not found: "+setup.Target.ID)
	}
	if setup.ImpactMethod == nil {
		return nil, rpcError(ipc.CodeBadRequest, "impact method required")
	}
	method, ok := s.dataset.method(setup.ImpactMethod.ID)
	if !ok {
		return nil, rpcError(ipc.CodeNotFound, "impact method not found: "+setup.ImpactMethod.ID)
	}

	amount := setup.Amount
	if amount == 0 {
		amount = 1
	}

	calc := &calculation{
		id:         uuid.NewString(),
		target:     target,
		method:     method,
		amount:     amount,
		simulation: simulation,
	}

	s.mu.Lock()
	s.results[calc.id] = calc
	state := s.stateOf(calc)
	s.mu.Unlock()

	metrics.RecordStubCalculation()
	return state, nil
}

func (s *Server) state(params json.RawMessage) (any, *ipc.ErrorObject) {
	s.mu.Lock()
	defer s.mu.Unlock()

	calc, rpcErr := s.lookup(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	calc.polls++
	return s.stateOf(calc), nil
}

func (s *Server) impactCategories(params json.RawMessage) (any, *ipc.ErrorObject) {
	calc, rpcErr := s.readyResult(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	refs := make([]schema.Ref, 0, len(calc.method.Categories))
	for _, c := range calc.method.Categories {
		refs = append(refs, c.ref())
	}
	return refs, nil
}

func (s *Server) techFlows(params json.RawMessage) (any, *ipc.ErrorObject) {
	calc, rpcErr := s.readyResult(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	// Upstream providers first, then the target itself.
	flows := make([]schema.TechFlow, 0, len(calc.target.Providers)+1)
	for _, id := range calc.target.Providers {
		if p, ok := s.dataset.process(id); ok {
			flows = append(flows, techFlowOf(p))
		}
	}
	flows = append(flows, techFlowOf(calc.target))
	return flows, nil
}

func (s *Server) totalImpactValueOf(params json.RawMessage) (any, *ipc.ErrorObject) {
	calc, rpcErr := s.readyResult(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	// Simulation handles carry no totals until an iteration has run, which
	// the stub never does.
	if calc.simulation {
		return nil, rpcError(ipc.CodeBadRequest, "no simulation iteration run on result: "+calc.id)
	}

	var p impactValueRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	for _, c := range calc.method.Categories {
		if c.ID != p.ImpactCategory.ID {
			continue
		}
		providerID := p.TechFlow.ProviderID()
		if providerID == "" {
			providerID = calc.target.ID
		}
		return schema.ImpactValue{
			ImpactCategory: c.ref(),
			Amount:         c.Factors[providerID] * calc.amount,
		}, nil
	}
	return nil, rpcError(ipc.CodeNotFound, "impact category not in result: "+p.ImpactCategory.ID)
}

func (s *Server) dispose(params json.RawMessage) (any, *ipc.ErrorObject) {
	var p resultRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.results, p.ID)
	s.mu.Unlock()

	return resultRequest{ID: p.ID}, nil
}

// readyResult looks up a result and rejects it while it is still running.
func (s *Server) readyResult(params json.RawMessage) (*calculation, *ipc.ErrorObject) {
	s.mu.Lock()
	defer s.mu.Unlock()

	calc, rpcErr := s.lookup(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if !s.stateOf(calc).IsReady {
		return nil, rpcError(ipc.CodeBadRequest, "result not ready: "+calc.id)
	}
	return calc, nil
}

// lookup must be called with s.mu held.
func (s *Server) lookup(params json.RawMessage) (*calculation, *ipc.ErrorObject) {
	var p resultRequest
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	calc, ok := s.results[p.ID]
	if !ok {
		return nil, rpcError(ipc.CodeNotFound, "no result with id "+p.ID)
	}
	return calc, nil
}

func (s *Server) stateOf(calc *calculation) schema.ResultState {
	ready := calc.polls >= s.readyAfter
	return schema.ResultState{ID: calc.id, IsReady: ready, IsScheduled: !ready}
}

func techFlowOf(p ProcessSpec) schema.TechFlow {
	provider := p.ref()
	return schema.TechFlow{
		Provider: &provider,
		Flow:     &schema.Ref{Type: schema.RefFlow, ID: "flow-" + p.ID, Name: p.Name},
	}
}

func decodeParams(params json.RawMessage, v any) *ipc.ErrorObject {
	if len(params) == 0 {
		return rpcError(ipc.CodeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return rpcError(ipc.CodeInvalidParams, err.Error())
	}
	return nil
}

func rpcError(code int, msg string) *ipc.ErrorObject {
	return &ipc.ErrorObject{Code: code, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
