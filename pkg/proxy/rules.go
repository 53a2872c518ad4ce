package proxy

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/mock"
)

// RuleEnv is what a rule's "when" expression can see. Header names are
// lower-cased; query and header values are the first value only.
//
//	method == "POST" && headers["x-api-key"] == ""
//	status >= 500
type RuleEnv struct {
	Method  string            `expr:"method"`
	Path    string            `expr:"path"`
	Query   map[string]string `expr:"query"`
	Headers map[string]string `expr:"headers"`
	Body    string            `expr:"body"`
	// Status is the upstream status; 0 for request rules.
	Status int `expr:"status"`
}

func newRuleEnv(req *mock.Request, resp *mock.Response) RuleEnv {
	env := RuleEnv{
		Method:  req.Method,
		Path:    req.Path,
		Query:   make(map[string]string, len(req.Query)),
		Headers: make(map[string]string, len(req.Headers)),
		Body:    string(req.Body),
	}
	for k := range req.Query {
		env.Query[k] = req.Query.Get(k)
	}
	for _, h := range req.Headers {
		if len(h.Values) > 0 {
			env.Headers[strings.ToLower(h.Name)] = h.Values[0]
		}
	}
	if resp != nil {
		env.Status = resp.StatusCode
	}
	return env
}

// rule is a compiled config filter.
type rule struct {
	cfg  config.FilterConfig
	when *vm.Program
}

func (r *rule) applies(req *mock.Request, resp *mock.Response) (bool, error) {
	if r.when == nil {
		return true, nil
	}
	out, err := expr.Run(r.when, newRuleEnv(req, resp))
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}

func (r *rule) applyHeaders(h mock.Headers) mock.Headers {
	for _, name := range r.cfg.RemoveHeaders {
		h = h.Del(name)
	}
	for name, value := range r.cfg.SetHeaders {
		h = h.Set(name, value)
	}
	return h
}

// CompileRules turns config-declared filters into registry entries, in order.
// A rule whose "when" is false or fails to evaluate leaves the exchange
// unchanged; it still counts as the matching entry.
func CompileRules(cfgs []config.FilterConfig) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfgs))
	for i, fc := range cfgs {
		r := &rule{cfg: fc}
		name := fc.Name
		if name == "" {
			name = fmt.Sprintf("config[%d]", i)
		}

		if fc.When != "" {
			program, err := expr.Compile(fc.When, expr.Env(RuleEnv{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("%w: %s: when: %v", ErrInvalidFilter, name, err)
			}
			r.when = program
		}

		switch strings.ToLower(fc.Kind) {
		case config.FilterKindRequest:
			entries = append(entries, Entry{
				Name:    name,
				Matcher: fc.Matcher,
				Kind:    KindRequest,
				Request: r.filterRequest,
			})
		case config.FilterKindResponse:
			entries = append(entries, Entry{
				Name:     name,
				Matcher:  fc.Matcher,
				Kind:     KindResponse,
				Response: r.filterResponse,
			})
		default:
			return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidFilter, name, fc.Kind)
		}
	}
	return entries, nil
}

func (r *rule) filterRequest(_ context.Context, req *mock.Request) (*mock.Request, bool) {
	ok, err := r.applies(req, nil)
	if err != nil || !ok {
		return req, true
	}
	if r.cfg.Veto {
		return nil, false
	}
	req.Headers = r.applyHeaders(req.Headers)
	return req, true
}

func (r *rule) filterResponse(_ context.Context, req *mock.Request, resp *mock.Response) *mock.Response {
	ok, err := r.applies(req, resp)
	if err != nil || !ok {
		return nil
	}
	out := resp.Clone()
	out.Headers = r.applyHeaders(out.Headers)
	if r.cfg.SetStatus != 0 {
		out.StatusCode = r.cfg.SetStatus
	}
	return out
}
