package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jkaninda/shellguard/internal/sandbox"
	"github.com/jkaninda/shellguard/internal/tools"
	"github.com/jkaninda/shellguard/internal/tools/file"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticRoots []string

func (s staticRoots) List(context.Context) ([]string, error) { return s, nil }

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tmp, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "hello.txt"), []byte("hi there"), 0600); err != nil {
		t.Fatal(err)
	}
	reg := tools.NewRegistry()
	reg.Register(file.NewTools(sandbox.NewConfiner(staticRoots{tmp}, ""), file.Config{}, discard)...)
	s, err := New("shellguard", "test", reg, discard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, tmp
}

func connect(t *testing.T, s *Server) *client.Client {
	t.Helper()
	ctx := context.Background()
	c, err := client.NewInProcessClient(s.MCP())
	if err != nil {
		t.Fatalf("NewInProcessClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0.0.1"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func call(t *testing.T, c *client.Client, name string, args map[string]any) (envelope, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content items = %d", len(res.Content))
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content is not text: %#v", res.Content[0])
	}
	var env envelope
	if err := json.Unmarshal([]byte(tc.Text), &env); err != nil {
		t.Fatalf("result is not a JSON envelope: %v\n%s", err, tc.Text)
	}
	return env, res.IsError
}

func TestListTools(t *testing.T) {
	s, _ := newTestServer(t)
	c := connect(t, s)

	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"readFile", "writeFile", "listDirectory", "searchByName"} {
		if !names[want] {
			t.Errorf("tool %s not advertised", want)
		}
	}
}

func TestCallTool(t *testing.T) {
	s, tmp := newTestServer(t)
	c := connect(t, s)

	env, isErr := call(t, c, "readFile", map[string]any{"workingDirectory": tmp, "path": "hello.txt"})
	if isErr || !env.Success {
		t.Fatalf("readFile = %+v", env)
	}
	if env.Data["content"] != "hi there" {
		t.Errorf("content = %v", env.Data["content"])
	}

	env, isErr = call(t, c, "readFile", map[string]any{"workingDirectory": tmp, "path": "../../etc/passwd"})
	if !isErr || env.Success || !strings.Contains(env.Message, "rejected") {
		t.Errorf("escape = %+v (isError=%v)", env, isErr)
	}

	env, isErr = call(t, c, "readFile", map[string]any{"workingDirectory": tmp})
	if !isErr || !strings.Contains(env.Message, "missing required parameter") {
		t.Errorf("validation = %+v", env)
	}
}

type countingCaller struct {
	inner Caller
	calls []string
}

func (c *countingCaller) Call(ctx context.Context, name string, params map[string]any) *tools.Result {
	c.calls = append(c.calls, name)
	return c.inner.Call(ctx, name, params)
}

func TestWithCaller(t *testing.T) {
	tmp := t.TempDir()
	reg := tools.NewRegistry()
	reg.Register(file.NewTools(sandbox.NewConfiner(staticRoots{tmp}, ""), file.Config{}, discard)...)
	counter := &countingCaller{inner: reg}
	s, err := New("shellguard", "test", reg, discard, WithCaller(counter))
	if err != nil {
		t.Fatal(err)
	}
	c := connect(t, s)
	call(t, c, "listDirectory", map[string]any{"workingDirectory": tmp, "path": "."})
	if len(counter.calls) != 1 || counter.calls[0] != "listDirectory" {
		t.Errorf("calls = %v", counter.calls)
	}
}

func TestServeStdio(t *testing.T) {
	s, _ := newTestServer(t)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, inR, outW) }()

	lines := bufio.NewScanner(outR)
	lines.Buffer(make([]byte, 0, 64*1024), 1<<20)
	send := func(msg string) map[string]any {
		t.Helper()
		if _, err := io.WriteString(inW, msg+"\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
		if !lines.Scan() {
			t.Fatalf("no response: %v", lines.Err())
		}
		var resp map[string]any
		if err := json.Unmarshal(lines.Bytes(), &resp); err != nil {
			t.Fatalf("bad response %q: %v", lines.Text(), err)
		}
		return resp
	}

	resp := send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"` + mcp.LATEST_PROTOCOL_VERSION + `","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`)
	if resp["error"] != nil {
		t.Fatalf("initialize error: %v", resp["error"])
	}
	resp = send(`{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`)
	result, _ := resp["result"].(map[string]any)
	if list, _ := result["tools"].([]any); len(list) == 0 {
		t.Errorf("tools/list = %v", resp)
	}

	cancel()
	_ = inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
