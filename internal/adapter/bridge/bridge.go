// Package bridge connects an agent runtime to MCP capability servers. It
// discovers each server's tool manifest once at startup, exposes the merged
// set as immutable capability descriptors, and invokes tools with schema
// validation, bounded retry and response normalization.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kaptinlin/jsonschema"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"agentnet/internal/domain"
	"agentnet/internal/infra/tracer"
)

// Config controls invocation behavior.
type Config struct {
	CallTimeout time.Duration // per-invocation timeout (default 30s)
	MaxRetries  int           // transport attempts before surfacing (default 3)
	BreakerMaxFailures uint32        // consecutive failures before the breaker opens
	BreakerTimeout     time.Duration // open-state duration
	BreakerInterval    time.Duration // closed-state failure-count reset period
}

func (c *Config) applyDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BreakerMaxFailures == 0 {
		c.BreakerMaxFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.BreakerInterval <= 0 {
		c.BreakerInterval = 60 * time.Second
	}
}

// ServerAddress names one capability server and its MCP endpoint URL.
type ServerAddress struct {
	Name string
	URL  string
}

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	ListResourceTemplates(ctx context.Context, request mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type serverConn struct {
	name    string
	baseURL string
	client  mcpClient
	breaker *gobreaker.CircuitBreaker[*mcp.CallToolResult]
}

// binding is one discovered, locally invocable capability.
type binding struct {
	descriptor domain.CapabilityDescriptor
	server     *serverConn
	compiled   *jsonschema.Schema
	defaults   map[string]any // schema-declared parameter defaults
	required   []string
	expected   []ExpectedField // normalization field set, may be nil
}

// Bridge holds the discovered capability set for one agent process.
// Discovery runs once in New; afterwards the descriptor set is read-only and
// Invoke is safe for concurrent use.
type Bridge struct {
	cfg      Config
	servers  []*serverConn
	bindings map[string]*binding
	order    []string // descriptor order: server config order, then tool order
	resources []domain.ResourceTemplate
	expected map[string][]ExpectedField
	logger   *slog.Logger
}

// Option customizes bridge construction.
type Option func(*Bridge)

// WithExpectedFields registers the documented field set for one capability:
// after a successful invocation the normalized result is guaranteed to carry
// every listed field, using the field's default when the server omitted it.
func WithExpectedFields(capability string, fields []ExpectedField) Option {
	return func(b *Bridge) {
		b.expected[capability] = fields
	}
}

// New connects to each configured capability server, discovers its manifest
// and resource templates, and returns an immutable bridge. A server that
// cannot be reached during discovery fails construction: a partially
// discovered capability set would silently change agent behavior.
//
// On tool name collisions across servers, the later-configured server wins
// and the shadowed descriptor is logged.
func New(ctx context.Context, servers []ServerAddress, cfg Config, logger *slog.Logger, opts ...Option) (*Bridge, error) {
	cfg.applyDefaults()
	b := &Bridge{
		cfg:      cfg,
		bindings: make(map[string]*binding),
		expected: make(map[string][]ExpectedField),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, srv := range servers {
		conn, err := b.connect(ctx, srv)
		if err != nil {
			b.Close()
			return nil, domain.WrapOp(fmt.Sprintf("bridge: server %q", srv.Name), err)
		}
		b.servers = append(b.servers, conn)
	}

	if err := b.discover(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// newWithClients builds a bridge from pre-built clients (for testing).
func newWithClients(ctx context.Context, conns []serverConn, cfg Config, logger *slog.Logger, opts ...Option) (*Bridge, error) {
	cfg.applyDefaults()
	b := &Bridge{
		cfg:      cfg,
		bindings: make(map[string]*binding),
		expected: make(map[string][]ExpectedField),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	for i := range conns {
		conn := conns[i]
		conn.breaker = b.newBreaker(conn.name)
		b.servers = append(b.servers, &conn)
	}
	if err := b.discover(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) connect(ctx context.Context, srv ServerAddress) (*serverConn, error) {
	t, err := transport.NewStreamableHTTP(srv.URL)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	c := mcpclient.NewClient(t)
	if err := c.Start(ctx); err != nil {
		return nil, domain.NewSubSystemError("bridge", "connect", domain.ErrServerUnreachable, srv.URL)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentnet", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.NewSubSystemError("bridge", "initialize", domain.ErrServerUnreachable, srv.URL)
	}

	b.logger.Info("capability server connected", "name", srv.Name, "url", srv.URL)
	return &serverConn{
		name:    srv.Name,
		baseURL: srv.URL,
		client:  c,
		breaker: b.newBreaker(srv.Name),
	}, nil
}

func (b *Bridge) newBreaker(server string) *gobreaker.CircuitBreaker[*mcp.CallToolResult] {
	maxFailures := b.cfg.BreakerMaxFailures
	return gobreaker.NewCircuitBreaker[*mcp.CallToolResult](gobreaker.Settings{
		Name:        "capserver:" + server,
		MaxRequests: 1, // one probe in half-open state
		Interval:    b.cfg.BreakerInterval,
		Timeout:     b.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("capability breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// discover fetches each server's manifest and resource templates, merging
// with last-wins shadowing in server configuration order.
func (b *Bridge) discover(ctx context.Context) error {
	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return domain.NewSubSystemError("bridge", "discover", domain.ErrServerUnreachable,
				fmt.Sprintf("list tools on %q: %v", srv.name, err))
		}

		for _, t := range result.Tools {
			bind, err := b.bind(srv, t)
			if err != nil {
				return fmt.Errorf("bridge: bind %s/%s: %w", srv.name, t.Name, err)
			}
			if prev, shadowed := b.bindings[t.Name]; shadowed {
				// Documented last-wins: the later-configured server replaces
				// the earlier one's descriptor wholesale.
				b.logger.Warn("capability shadowed",
					"name", t.Name, "winner", srv.name, "shadowed", prev.server.name)
			} else {
				b.order = append(b.order, t.Name)
			}
			b.bindings[t.Name] = bind
		}

		tmpls, err := srv.client.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
		if err == nil {
			for _, rt := range tmpls.ResourceTemplates {
				uri := ""
				if rt.URITemplate != nil {
					uri = rt.URITemplate.Raw()
				}
				b.resources = append(b.resources, domain.ResourceTemplate{
					URITemplate: uri,
					Name:        rt.Name,
					MIMEType:    rt.MIMEType,
				})
			}
		}

		b.logger.Info("capabilities discovered", "server", srv.name, "count", len(result.Tools))
	}
	return nil
}

// bind compiles a discovered tool into a locally invocable binding.
func (b *Bridge) bind(srv *serverConn, t mcp.Tool) (*binding, error) {
	schemaBytes, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(schemaBytes)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &binding{
		descriptor: domain.CapabilityDescriptor{
			Name:        t.Name,
			Owner:       srv.name,
			Description: t.Description,
			Schema:      schemaBytes,
		},
		server:   srv,
		compiled: compiled,
		defaults: schemaDefaults(schemaBytes),
		required: t.InputSchema.Required,
		expected: b.expected[t.Name],
	}, nil
}

// Capabilities implements domain.CapabilityInvoker.
func (b *Bridge) Capabilities() []domain.CapabilityDescriptor {
	out := make([]domain.CapabilityDescriptor, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.bindings[name].descriptor)
	}
	return out
}

// Resources returns the merged resource URI templates, sorted by name.
func (b *Bridge) Resources() []domain.ResourceTemplate {
	out := make([]domain.ResourceTemplate, len(b.resources))
	copy(out, b.resources)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bindings returns the per-server view of the discovered set.
func (b *Bridge) Bindings() []domain.ServerBinding {
	out := make([]domain.ServerBinding, 0, len(b.servers))
	for _, srv := range b.servers {
		sb := domain.ServerBinding{Name: srv.name, BaseURL: srv.baseURL}
		for _, name := range b.order {
			if bind := b.bindings[name]; bind.server == srv {
				sb.Tools = append(sb.Tools, bind.descriptor)
			}
		}
		out = append(out, sb)
	}
	return out
}

// Invoke implements domain.CapabilityInvoker. Arguments are validated against
// the capability's schema (schema defaults fill omitted optional fields);
// transport failures are retried with exponential backoff inside the server's
// circuit breaker before surfacing as ErrServerUnreachable. Successful
// responses are normalized; unknown shapes surface with the raw payload.
//
// Invoke is safe for concurrent use; sibling invocations never block each
// other beyond Go scheduler fairness.
func (b *Bridge) Invoke(ctx context.Context, name string, args map[string]any) (*domain.CapabilityResult, error) {
	ctx, span := tracer.StartSpan(ctx, "bridge.invoke",
		trace.WithAttributes(tracer.StringAttr("capability.name", name)),
	)
	defer span.End()

	bind, ok := b.bindings[name]
	if !ok {
		err := domain.NewSubSystemError("bridge", "Invoke", domain.ErrNotFound, name)
		tracer.RecordError(span, err)
		return nil, err
	}

	merged, err := bind.validateArgs(args)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	result, err := bind.server.breaker.Execute(func() (*mcp.CallToolResult, error) {
		return b.callWithRetry(ctx, bind, merged)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.NewSubSystemError("bridge", "Invoke", domain.ErrServerUnreachable,
				fmt.Sprintf("%s: breaker open for server %q", name, bind.server.name))
		}
		tracer.RecordError(span, err)
		return nil, err
	}

	b.logger.Debug("capability invoked",
		"capability", name, "server", bind.server.name, "duration_ms", time.Since(start).Milliseconds())

	return b.normalizeResult(name, bind, result)
}

// InvokeOutcome is the result of one asynchronous invocation.
type InvokeOutcome struct {
	Result *domain.CapabilityResult
	Err    error
}

// InvokeAsync starts the invocation in its own goroutine and returns a
// channel delivering exactly one outcome. The agent runtime uses it to keep
// handling other tasks while a capability call is in flight.
func (b *Bridge) InvokeAsync(ctx context.Context, name string, args map[string]any) <-chan InvokeOutcome {
	ch := make(chan InvokeOutcome, 1)
	go func() {
		result, err := b.Invoke(ctx, name, args)
		ch <- InvokeOutcome{Result: result, Err: err}
	}()
	return ch
}

// validateArgs merges schema defaults into args and validates the merged set.
// A required field with neither a value nor a schema default fails with
// ErrInvalidArguments; validation never fabricates values (that is strictly a
// result-normalization concern).
func (bind *binding) validateArgs(args map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(args)+len(bind.defaults))
	for k, v := range bind.defaults {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}

	for _, req := range bind.required {
		if _, ok := merged[req]; !ok {
			return nil, domain.NewSubSystemError("bridge", "Invoke", domain.ErrInvalidArguments,
				fmt.Sprintf("%s: required field %q missing", bind.descriptor.Name, req))
		}
	}

	if result := bind.compiled.Validate(merged); !result.IsValid() {
		return nil, domain.NewSubSystemError("bridge", "Invoke", domain.ErrInvalidArguments,
			fmt.Sprintf("%s: %v", bind.descriptor.Name, result.Error()))
	}
	return merged, nil
}

// callWithRetry performs the remote call with bounded exponential backoff.
// Only transport errors retry; a tool-level error result returns immediately.
func (b *Bridge) callWithRetry(ctx context.Context, bind *binding, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = bind.descriptor.Name
	req.Params.Arguments = args

	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, domain.NewSubSystemError("bridge", "Invoke", domain.ErrServerUnreachable,
					fmt.Sprintf("%s: %v", bind.server.name, ctx.Err()))
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
		result, err := bind.server.client.CallTool(callCtx, req)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		b.logger.Warn("capability call failed",
			"capability", bind.descriptor.Name, "server", bind.server.name,
			"attempt", attempt+1, "error", err)
	}

	return nil, domain.NewSubSystemError("bridge", "Invoke", domain.ErrServerUnreachable,
		fmt.Sprintf("%s after %d attempts: %v", bind.server.name, b.cfg.MaxRetries, lastErr))
}

// normalizeResult unwraps the MCP content envelope and applies the shape
// table plus the capability's expected-field defaults.
func (b *Bridge) normalizeResult(name string, bind *binding, result *mcp.CallToolResult) (*domain.CapabilityResult, error) {
	raw := contentText(result)

	if result.IsError {
		return nil, domain.NewPayloadError("Bridge.Invoke",
			fmt.Errorf("capability %q failed: %s", name, raw), bind.server.name, []byte(raw))
	}

	normalized, err := Normalize([]byte(raw), bind.expected)
	if err != nil {
		b.logger.Error("unrecognized capability response",
			"capability", name, "server", bind.server.name, "payload", raw)
		return nil, err
	}
	return normalized, nil
}

// contentText flattens an MCP result's content blocks to text, marshaling
// non-text blocks as JSON.
func contentText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	joined, _ := json.Marshal(parts)
	return string(joined)
}

// Close shuts down all capability server connections.
func (b *Bridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("capability server close error", "server", srv.name, "error", err)
		}
	}
}

// schemaDefaults extracts property defaults from a JSON schema document.
func schemaDefaults(schema []byte) map[string]any {
	var doc struct {
		Properties map[string]struct {
			Default any `json:"default"`
		} `json:"properties"`
	}
	defaults := make(map[string]any)
	if err := json.Unmarshal(schema, &doc); err != nil {
		return defaults
	}
	for name, prop := range doc.Properties {
		if prop.Default != nil {
			defaults[name] = prop.Default
		}
	}
	return defaults
}
