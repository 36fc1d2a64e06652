package qdrant

import "testing"

func TestValidateConfig(t *testing.T) {
	valid := Config{URL: "http://localhost:6333", Collection: "chunks", VectorDim: 1536}
	if err := ValidateConfig(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing url", Config{Collection: "chunks", VectorDim: 1536}},
		{"bad scheme", Config{URL: "localhost:6333", Collection: "chunks", VectorDim: 1536}},
		{"missing collection", Config{URL: "http://localhost:6333", VectorDim: 1536}},
		{"zero dim", Config{URL: "http://localhost:6333", Collection: "chunks"}},
	}
	for _, tc := range cases {
		if err := ValidateConfig(tc.cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatalf("empty config should be disabled")
	}
	if !(Config{URL: "http://localhost:6333"}).Enabled() {
		t.Fatalf("config with url should be enabled")
	}
}
