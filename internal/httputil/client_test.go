package httputil

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestMockClientQueuedResponses(t *testing.T) {
	m := NewMockHTTPClient()
	m.AddResponse(http.StatusOK, `["a.geojson"]`)
	m.AddResponse(http.StatusNotFound, `{"error":"File not found"}`)

	req, _ := http.NewRequest(http.MethodGet, "http://geodesk.test/api/polygons", nil)
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("first status = %d, want 200", resp.StatusCode)
	}

	resp, err = m.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second status = %d, want 404", resp.StatusCode)
	}

	if m.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", m.RequestCount())
	}
}

func TestMockClientRecordsBody(t *testing.T) {
	m := NewMockHTTPClient()
	body := `{"type":"FeatureCollection","features":[]}`
	req, _ := http.NewRequest(http.MethodPost, "http://geodesk.test/api/polygons/a.geojson", strings.NewReader(body))

	if _, err := m.Do(req); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	last := m.LastRequest()
	if last == nil {
		t.Fatal("no recorded request")
	}
	if last.Method != http.MethodPost || last.Path != "/api/polygons/a.geojson" {
		t.Errorf("recorded %s %s", last.Method, last.Path)
	}
	if string(last.Body) != body {
		t.Errorf("recorded body = %q, want %q", last.Body, body)
	}
}

func TestMockClientErrorResponse(t *testing.T) {
	m := NewMockHTTPClient()
	boom := errors.New("connection refused")
	m.AddErrorResponse(boom)

	req, _ := http.NewRequest(http.MethodGet, "http://geodesk.test/api/polygons", nil)
	if _, err := m.Do(req); !errors.Is(err, boom) {
		t.Errorf("Do error = %v, want %v", err, boom)
	}
}

func TestMockClientDoFunc(t *testing.T) {
	m := NewMockHTTPClient()
	m.DoFunc = func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/api/polygons" {
			return NewResponse(http.StatusOK, `[]`, req), nil
		}
		return NewResponse(http.StatusNotFound, `{"error":"not found"}`, req), nil
	}

	req, _ := http.NewRequest(http.MethodGet, "http://geodesk.test/api/points/x.geojson", nil)
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
