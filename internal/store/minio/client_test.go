package minio

import "testing"

func TestSnapshotKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"prod", "snapshots/prod.yaml"},
		{"prod.json", "snapshots/prod.json"},
		{"snapshots/dev.yaml", "snapshots/dev.yaml"},
	}
	for _, tt := range tests {
		if got := SnapshotKey(tt.name); got != tt.want {
			t.Errorf("SnapshotKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("snapshots/a.json"); got != "application/json" {
		t.Errorf("json content type = %q", got)
	}
	if got := contentType("snapshots/a.yaml"); got != "application/yaml" {
		t.Errorf("yaml content type = %q", got)
	}
}
