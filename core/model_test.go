package core

import "testing"

func TestParseModelURI(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		raw      string
		wantOK   bool
		wantEID  string
		wantName string
	}{
		{"well formed", "flm://ollama-1/llama3", true, "ollama-1", "llama3"},
		{"no scheme", "llama3", false, "", "llama3"},
		{"missing model", "flm://ollama-1/", false, "", ""},
		{"missing engine", "flm:///llama3", false, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uri, ok := ParseModelURI(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if ok && (uri.EngineID != tc.wantEID || uri.Model != tc.wantName) {
				t.Fatalf("expected %s/%s, got %s/%s", tc.wantEID, tc.wantName, uri.EngineID, uri.Model)
			}
		})
	}
}

func TestModelURIString(t *testing.T) {
	t.Parallel()
	uri := ModelURI{EngineID: "vllm-a", Model: "mixtral"}
	if got, want := uri.String(), "flm://vllm-a/mixtral"; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestProxyConfigValidate(t *testing.T) {
	t.Parallel()

	valid := ProxyConfig{Mode: TLSModeLocalHTTP, Port: 18080, BindAddr: "127.0.0.1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}

	badPort := valid
	badPort.Port = 0
	if err := badPort.Validate(); err == nil {
		t.Fatalf("expected invalid port to fail validation")
	}

	wildcard := ProxyConfig{
		Mode: TLSModeHTTPSAcme, Port: 443,
		Acme: AcmeConfig{Domain: "*.example.com", Challenge: ChallengeHTTP01},
	}
	err := wildcard.Validate()
	if err == nil || err.Code != CodeProxyInvalidConfig {
		t.Fatalf("expected wildcard without dns-01 to be rejected, got %v", err)
	}

	wildcardOK := wildcard
	wildcardOK.Acme.Challenge = ChallengeDNS01
	if err := wildcardOK.Validate(); err != nil {
		t.Fatalf("expected wildcard with dns-01 to pass, got %v", err)
	}
}
