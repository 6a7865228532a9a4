package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "API_BASE", "SEARCH_LIMIT", "SESSION_TTL", "CONTENT_DRIVER", "CORS_ORIGINS", "DATA_URL"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Addr != ":8080" || c.APIBase != "/api" {
		t.Fatalf("unexpected listen defaults: %q %q", c.Addr, c.APIBase)
	}
	if c.SearchLimit != 10 {
		t.Errorf("SearchLimit = %d, want 10", c.SearchLimit)
	}
	if c.SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL = %v", c.SessionTTL)
	}
	if c.ContentDriver != "json" {
		t.Errorf("ContentDriver = %q", c.ContentDriver)
	}
	if !reflect.DeepEqual(c.CORSOrigins, []string{"*"}) {
		t.Errorf("CORSOrigins = %v", c.CORSOrigins)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SEARCH_LIMIT", "25")
	t.Setenv("SESSION_TTL", "90")
	t.Setenv("BOUNDARY_FETCH_TIMEOUT", "5s")
	t.Setenv("CONTENT_DRIVER", "Postgres")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DATA_URL", "https://bucket.example/data/")
	t.Setenv("NAVIGATE_ZOOM", "not-a-number")

	c := FromEnv()
	if c.SearchLimit != 25 {
		t.Errorf("SearchLimit = %d", c.SearchLimit)
	}
	if c.SessionTTL != 90*time.Second {
		t.Errorf("SessionTTL = %v", c.SessionTTL)
	}
	if c.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %v", c.FetchTimeout)
	}
	if c.ContentDriver != "postgres" {
		t.Errorf("ContentDriver = %q", c.ContentDriver)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(c.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v", c.CORSOrigins)
	}
	if c.DataURL != "https://bucket.example/data" {
		t.Errorf("DataURL = %q", c.DataURL)
	}
	if c.NavigateZoom != 8 {
		t.Errorf("NavigateZoom fallback = %v", c.NavigateZoom)
	}
}
