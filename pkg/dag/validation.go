// Package dag validates workflow graphs: a workflow is executable only when it
// is a well-formed DAG leading from every start node to an output node.
package dag

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/dukex/dagstudio/pkg/models"
)

// ErrInvalidWorkflow matches every *ValidationError.
var ErrInvalidWorkflow = errors.New("workflow validation failed")

// Result is the outcome of validating a workflow. Errors are ordered and
// accumulated: every violated rule is listed.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}

	return &ValidationError{Errors: slices.Clone(r.Errors)}
}

// ValidationError reports every rule a workflow violates.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "Validation failed: " + strings.Join(e.Errors, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidWorkflow
}

// Normalize returns a deep copy of w with every http method upper-cased and a
// missing method defaulted to GET. The input is never modified.
func Normalize(w *models.Workflow) *models.Workflow {
	out := w.Clone()
	if out == nil {
		return &models.Workflow{Nodes: []models.Node{}, Edges: []models.Edge{}}
	}

	for i := range out.Nodes {
		if out.Nodes[i].Config == nil {
			if cfg, err := models.DecodeConfig(out.Nodes[i].Kind, nil); err == nil {
				out.Nodes[i].Config = cfg
			}
		}

		cfg, ok := out.Nodes[i].HTTP()
		if !ok {
			continue
		}

		if cfg.Method == "" {
			cfg.Method = models.MethodGet
		}
	}

	return out
}

// Validate checks w against every structural rule and returns all violations.
// It validates a normalized copy; w itself is left untouched.
func Validate(w *models.Workflow) Result {
	wf := Normalize(w)
	g := newGraph(wf.Nodes, wf.Edges)

	var errs []string

	starts := filterByKind(wf.Nodes, models.NodeKindStart)
	outputs := filterByKind(wf.Nodes, models.NodeKindOutput)

	if len(starts) == 0 {
		errs = append(errs, "Workflow must have at least one start node")
	}

	for _, s := range starts {
		if g.inDegree[s.ID] > 0 {
			errs = append(errs, fmt.Sprintf("Start node '%s' cannot have incoming edges", s.ID))
		}
	}

	if len(outputs) == 0 {
		errs = append(errs, "Workflow must have at least one output node")
	}

	if g.hasCycle() {
		errs = append(errs, "Workflow contains a cycle")
	}

	outputIDs := make(map[string]struct{}, len(outputs))
	for _, o := range outputs {
		outputIDs[o.ID] = struct{}{}
	}

	for _, s := range starts {
		if !g.reachesAny(s.ID, outputIDs) {
			errs = append(errs, fmt.Sprintf("Start node '%s' has no path to any output node", s.ID))
		}
	}

	for _, n := range wf.Nodes {
		errs = append(errs, validateNode(n)...)
	}

	for _, e := range wf.Edges {
		for _, end := range []string{e.Source, e.Target} {
			if _, ok := g.nodes[end]; !ok {
				errs = append(errs, fmt.Sprintf("Edge '%s' references unknown node '%s'", e.ID, end))
			}
		}
	}

	for _, id := range g.duplicates {
		errs = append(errs, fmt.Sprintf("Duplicate node id '%s'", id))
	}

	return Result{Valid: len(errs) == 0, Errors: nonNil(errs)}
}

func validateNode(n models.Node) []string {
	var errs []string

	switch cfg := n.Config.(type) {
	case *models.HTTPConfig:
		if strings.TrimSpace(cfg.URL) == "" {
			errs = append(errs, fmt.Sprintf("HTTP node '%s' must have a URL", n.ID))
		}

		if !slices.Contains(models.HTTPMethods(), cfg.Method) {
			errs = append(errs, fmt.Sprintf("HTTP node '%s' has invalid method '%s'", n.ID, cfg.Method))
		}

		if strings.TrimSpace(cfg.URL) != "" && !IsValidURL(cfg.URL) {
			errs = append(errs, fmt.Sprintf("HTTP node '%s' has invalid URL format", n.ID))
		}
	case *models.StartConfig, *models.CodeConfig, *models.OutputConfig:
	default:
		errs = append(errs, fmt.Sprintf("Unknown node type '%s' for node '%s'", n.Kind, n.ID))
	}

	if n.Config != nil && n.Config.Kind() != n.Kind {
		errs = append(errs, fmt.Sprintf("Node '%s' data does not match its type '%s'", n.ID, n.Kind))
	}

	return errs
}

// IsValidURL reports whether raw parses as an absolute URL. Surrounding
// whitespace is ignored.
func IsValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}

	return u.IsAbs() && (u.Host != "" || u.Opaque != "")
}

func filterByKind(nodes []models.Node, kind models.NodeKind) []models.Node {
	var out []models.Node

	for _, n := range nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}

	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
