package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/aether/internal/ir"
)

//go:embed contracts.cue
var contractsSrc string

// Definition names inside contracts.cue.
const (
	RequestDefinition  = "#EventBatchRequest"
	ResponseDefinition = "#EventBatchResponse"
)

// Gate validates documents against the compiled contracts.
//
// Thread-safety: CUE values are not safe for concurrent evaluation, so
// every validation holds the gate's mutex. Validation is short and
// allocation-bound; the ingest loop is single-writer anyway.
type Gate struct {
	mu       sync.Mutex
	ctx      *cue.Context
	request  cue.Value
	response cue.Value
}

// New compiles the embedded contracts.
func New() (*Gate, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(contractsSrc, cue.Filename("contracts.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile contracts: %w", err)
	}

	g := &Gate{ctx: ctx}
	for name, dst := range map[string]*cue.Value{
		RequestDefinition:  &g.request,
		ResponseDefinition: &g.response,
	} {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("compile contracts: definition %s not found", name)
		}
		*dst = def
	}
	return g, nil
}

// MustNew is like New but panics if the embedded contracts do not compile.
func MustNew() *Gate {
	g, err := New()
	if err != nil {
		panic(err)
	}
	return g
}

// ValidateRequest checks a raw request body against #EventBatchRequest.
// Returns nil when the document conforms.
func (g *Gate) ValidateRequest(raw []byte) []ValidationError {
	return g.validate(g.request, "request.json", raw)
}

// ValidateResponse checks an assembled response against #EventBatchResponse.
// The response is encoded exactly as it would be sent on the wire.
func (g *Gate) ValidateResponse(resp *ir.BatchResponse) []ValidationError {
	raw, err := json.Marshal(resp)
	if err != nil {
		return []ValidationError{{
			Field:   "/",
			Message: fmt.Sprintf("encode response: %v", err),
			Code:    ErrMalformedJSON,
		}}
	}
	return g.validate(g.response, "response.json", raw)
}

func (g *Gate) validate(def cue.Value, filename string, raw []byte) []ValidationError {
	expr, err := cuejson.Extract(filename, raw)
	if err != nil {
		return []ValidationError{{Field: "/", Message: err.Error(), Code: ErrMalformedJSON}}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	data := g.ctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return []ValidationError{{Field: "/", Message: err.Error(), Code: ErrMalformedJSON}}
	}

	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertErrors(err)
	}
	return nil
}

// convertErrors flattens CUE errors into sorted, de-duplicated ValidationErrors.
func convertErrors(err error) []ValidationError {
	var out []ValidationError
	seen := make(map[string]bool)

	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			Field:   fieldPath(e.Path()),
			Message: fmt.Sprintf(format, args...),
			Code:    ErrContractViolation,
		}
		key := ve.Field + "\x00" + ve.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ve)
	}

	if len(out) == 0 {
		out = append(out, ValidationError{Field: "/", Message: err.Error(), Code: ErrContractViolation})
	}

	slices.SortStableFunc(out, func(a, b ValidationError) int {
		return strings.Compare(a.Field, b.Field)
	})
	return out
}

// fieldPath renders a CUE error path as "/events/0/payload".
// The leading definition selector is dropped.
func fieldPath(path []string) string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	if len(path) == 0 {
		return "/"
	}
	return "/" + strings.Join(path, "/")
}
