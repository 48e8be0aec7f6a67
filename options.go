package rendergraph

import "github.com/gogpu/rendergraph/command"

// Option configures a Graph during creation.
//
// Example:
//
//	trace := &command.Trace{}
//	g := rendergraph.New(queue, rendergraph.WithName("frame"), rendergraph.WithTrace(trace))
type Option func(*options)

// options holds optional configuration for Graph creation.
type options struct {
	name  string
	trace *command.Trace
}

// defaultOptions returns the default graph options.
func defaultOptions() options {
	return options{name: "graph"}
}

// WithName sets the graph name used in logs and trace scopes.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithTrace records every resolved barrier batch into t, in pass order.
// The trace is written on the submission goroutine while Execute runs,
// so two executions of the same pass sequence produce the same trace.
func WithTrace(t *command.Trace) Option {
	return func(o *options) {
		o.trace = t
	}
}
