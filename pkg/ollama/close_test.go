package ollama

import (
	"net/http"
	"sync/atomic"
	"testing"
)

type testTransport struct{ called int32 }

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) { panic("not used") }
func (t *testTransport) CloseIdleConnections()                               { atomic.AddInt32(&t.called, 1) }

func TestClient_Close_IdempotentAndCallsTransport(t *testing.T) {
	tr := &testTransport{}
	c, err := NewClient(Config{BaseURL: "http://localhost:11434"}, &http.Client{Transport: tr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close second call error: %v", err)
	}
	if got := atomic.LoadInt32(&tr.called); got != 1 {
		t.Fatalf("expected CloseIdleConnections called once, got %d", got)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{BaseURL: "http://ollama:11434", Retries: -1}.WithDefaults()
	if c.BaseURL != "http://ollama:11434" {
		t.Fatalf("base url overwritten: %s", c.BaseURL)
	}
	if c.Retries != 0 || c.Model == "" || c.Timeout == 0 || c.CircuitFailureThreshold == 0 {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	out, err := RenderTemplate("Q: {{.Question}}", map[string]any{"Question": "where is the valve?"})
	if err != nil || out != "Q: where is the valve?" {
		t.Fatalf("render: %q %v", out, err)
	}
	if _, err := RenderTemplate("{{.Missing}}", map[string]any{}); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
