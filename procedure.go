package jsandy

import "net/http"

// Procedure is an immutable builder for a single route's middleware chain
// and validation schemas. Every chain method (Use, Input, Incoming,
// Outgoing, Describe) returns a new Procedure, leaving the receiver
// untouched -- so a base procedure can be shared and specialized by many
// routes without them stepping on each other, the same shape as ags's
// Group chain but generalized from http.Handler middleware to typed
// request/response handlers.
type Procedure struct {
	middlewares []MiddlewareFunc
	input       *Schema
	incoming    *Schema
	outgoing    *Schema
	description string
}

// NewProcedure returns the empty base procedure: no middleware, no schemas.
func NewProcedure() *Procedure {
	return &Procedure{}
}

func (p *Procedure) clone() *Procedure {
	return &Procedure{
		middlewares: append([]MiddlewareFunc{}, p.middlewares...),
		input:       p.input,
		incoming:    p.incoming,
		outgoing:    p.outgoing,
		description: p.description,
	}
}

// Use appends a middleware to the chain, returning a new Procedure.
func (p *Procedure) Use(mw MiddlewareFunc) *Procedure {
	next := p.clone()
	next.middlewares = append(next.middlewares, mw)
	return next
}

// Input declares the schema HTTP request bodies/query fields are validated
// against before a handler runs.
func (p *Procedure) Input(s *Schema) *Procedure {
	next := p.clone()
	next.input = s
	return next
}

// Incoming declares the schema client-to-server WS events are validated
// against.
func (p *Procedure) Incoming(s *Schema) *Procedure {
	next := p.clone()
	next.incoming = s
	return next
}

// Outgoing declares the schema server-to-client WS events are validated
// against before being emitted.
func (p *Procedure) Outgoing(s *Schema) *Procedure {
	next := p.clone()
	next.outgoing = s
	return next
}

// Describe attaches a human-readable description, surfaced by Router's
// metadata accessors.
func (p *Procedure) Describe(description string) *Procedure {
	next := p.clone()
	next.description = description
	return next
}

// Route is a fully bound procedure: a method, its middleware-wrapped
// invocation, and (for WS routes) the socket handshake entry point. Routes
// are produced by the generic Get/Post/Query/Mutation/Ws terminal
// functions, never constructed directly, since a typed handler closure
// must be captured at the call site.
type Route struct {
	Method      string
	Description string
	isWS        bool
	invoke      func(c *Context) (any, error)
	wsInvoke    func(c *Context) error
}

// decodeInput produces the input value for a handler from the request:
// query parameters for GET, per-field JSON body for everything else, per
// spec.md §4.1's per-field request encoding.
func decodeInput[In any](r *http.Request) (In, error) {
	var zero In
	fields := map[string]any{}

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		for key, vals := range r.URL.Query() {
			if len(vals) == 0 {
				continue
			}
			decoded, err := DecodeField(vals[0])
			if err != nil {
				// tolerate plain (non-enveloped) query values from non-jsandy callers
				fields[key] = vals[0]
				continue
			}
			fields[key] = decoded
		}
	} else if r.Body != nil {
		raw, err := decodeJSONBody(r)
		if err != nil {
			return zero, err
		}
		for key, text := range raw {
			decoded, derr := DecodeField(text)
			if derr != nil {
				return zero, derr
			}
			fields[key] = decoded
		}
	}

	return Bind[In](fields)
}

func runProcedure[In, Out any](p *Procedure, c *Context, handler func(c *Context, input In) (Out, error)) (any, error) {
	terminal := func(c *Context) (any, error) {
		input, err := decodeInput[In](c.Request)
		if err != nil {
			return nil, err
		}
		if p.input != nil {
			doc, derr := inputValidationDoc(c.Request, input)
			if derr != nil {
				return nil, derr
			}
			if verr := p.input.Validate(doc); verr != nil {
				return nil, verr
			}
		}
		return handler(c, input)
	}
	return chain(p.middlewares, terminal)(c)
}

// inputValidationDoc re-derives a schema-checkable document for the bound
// input value, preferring to re-encode the already-bound struct so that
// default values applied during Bind participate in validation.
func inputValidationDoc(r *http.Request, input any) (any, error) {
	hints := map[string]tag{}
	return encodeAny(input, "", hints)
}

// Get declares a GET ("query") route: input decoded from the query string,
// output encoded as the response body.
func Get[In, Out any](p *Procedure, handler func(c *Context, input In) (Out, error)) *Route {
	return &Route{
		Method:      http.MethodGet,
		Description: p.description,
		invoke: func(c *Context) (any, error) {
			return runProcedure(p, c, handler)
		},
	}
}

// Query is an alias for Get, matching spec.md's query/mutation naming.
func Query[In, Out any](p *Procedure, handler func(c *Context, input In) (Out, error)) *Route {
	return Get(p, handler)
}

// Post declares a POST ("mutation") route: input decoded from the JSON
// request body, output encoded as the response body.
func Post[In, Out any](p *Procedure, handler func(c *Context, input In) (Out, error)) *Route {
	return &Route{
		Method:      http.MethodPost,
		Description: p.description,
		invoke: func(c *Context) (any, error) {
			return runProcedure(p, c, handler)
		},
	}
}

// Mutation is an alias for Post.
func Mutation[In, Out any](p *Procedure, handler func(c *Context, input In) (Out, error)) *Route {
	return Post(p, handler)
}

// Ws declares a WebSocket route. handler runs once per accepted connection,
// for the lifetime of that connection; it owns the ServerSocket it's given.
func Ws[Incoming, Outgoing any](p *Procedure, handler func(c *Context, socket *ServerSocket[Incoming, Outgoing]) error) *Route {
	return &Route{
		Method:      http.MethodGet,
		Description: p.description,
		isWS:        true,
		wsInvoke: func(c *Context) error {
			terminal := func(c *Context) (any, error) {
				socket, err := upgradeServerSocket[Incoming, Outgoing](c, p.incoming, p.outgoing)
				if err != nil {
					return nil, err
				}
				defer socket.Close()
				return nil, handler(c, socket)
			}
			_, err := chain(p.middlewares, terminal)(c)
			return err
		},
	}
}
