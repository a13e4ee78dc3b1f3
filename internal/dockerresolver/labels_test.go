package dockerresolver

import (
	"testing"
)

func TestLabelParser_ParseLabels(t *testing.T) {
	parser := NewLabelParser()

	t.Run("returns nil when not enabled", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.host": "app.test",
		}

		configs, err := parser.ParseLabels(labels)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if configs != nil {
			t.Errorf("expected nil configs, got %v", configs)
		}
	})

	t.Run("parses simple single-service config", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
			"sniterm.host":   "app.test",
		}

		configs, err := parser.ParseLabels(labels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(configs) != 1 {
			t.Fatalf("expected 1 config, got %d", len(configs))
		}

		if configs[0].Host != "app.test" {
			t.Errorf("expected host 'app.test', got %q", configs[0].Host)
		}
		if configs[0].Port != 80 {
			t.Errorf("expected default port 80, got %d", configs[0].Port)
		}
	})

	t.Run("parses single-service with custom port", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
			"sniterm.host":   "app.test",
			"sniterm.port":   "3000",
		}

		configs, err := parser.ParseLabels(labels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if configs[0].Port != 3000 {
			t.Errorf("expected port 3000, got %d", configs[0].Port)
		}
	})

	t.Run("parses comma-separated hosts", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
			"sniterm.host":   "app.test, www.app.test",
		}

		configs, err := parser.ParseLabels(labels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if configs[0].Host != "app.test, www.app.test" {
			t.Errorf("expected host to retain raw comma list, got %q", configs[0].Host)
		}
	})

	t.Run("returns error for missing host", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
		}

		_, err := parser.ParseLabels(labels)
		if err == nil {
			t.Error("expected error for missing host")
		}
	})

	t.Run("returns error for invalid host", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
			"sniterm.host":   ".app.test",
		}

		_, err := parser.ParseLabels(labels)
		if err == nil {
			t.Error("expected error for invalid host")
		}
	})

	t.Run("returns error for invalid port", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
			"sniterm.host":   "app.test",
			"sniterm.port":   "invalid",
		}

		_, err := parser.ParseLabels(labels)
		if err == nil {
			t.Error("expected error for invalid port")
		}
	})

	t.Run("returns error for port out of range", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
			"sniterm.host":   "app.test",
			"sniterm.port":   "70000",
		}

		_, err := parser.ParseLabels(labels)
		if err == nil {
			t.Error("expected error for port out of range")
		}
	})

	t.Run("parses multi-service config", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable":            "true",
			"sniterm.services.web.host": "app.test",
			"sniterm.services.web.port": "3000",
			"sniterm.services.api.host": "api.test",
			"sniterm.services.api.port": "4000",
		}

		configs, err := parser.ParseLabels(labels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(configs) != 2 {
			t.Fatalf("expected 2 configs, got %d", len(configs))
		}

		found := make(map[string]bool)
		for _, c := range configs {
			found[c.Name] = true
		}
		if !found["web"] || !found["api"] {
			t.Errorf("expected services 'web' and 'api', got %v", found)
		}
	})

	t.Run("returns error for multi-service missing host", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable":            "true",
			"sniterm.services.web.port": "3000",
		}

		_, err := parser.ParseLabels(labels)
		if err == nil {
			t.Error("expected error for missing host in multi-service")
		}
	})
}

func TestLabelParser_IsEnabled(t *testing.T) {
	parser := NewLabelParser()

	t.Run("returns true when enabled", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "true",
		}

		if !parser.IsEnabled(labels) {
			t.Error("expected IsEnabled to return true")
		}
	})

	t.Run("returns false when not enabled", func(t *testing.T) {
		labels := map[string]string{
			"sniterm.enable": "false",
		}

		if parser.IsEnabled(labels) {
			t.Error("expected IsEnabled to return false")
		}
	})

	t.Run("returns false when label missing", func(t *testing.T) {
		labels := map[string]string{}

		if parser.IsEnabled(labels) {
			t.Error("expected IsEnabled to return false")
		}
	})
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		host    string
		wantErr bool
	}{
		{"app.test", false},
		{"*.app.test", false},
		{"", true},
		{".app.test", true},
		{"app.test.", true},
		{"*", true},
		{"*foo.test", true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := validateHost(tt.host)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHost(%q) error = %v, wantErr %v", tt.host, err, tt.wantErr)
			}
		})
	}
}
