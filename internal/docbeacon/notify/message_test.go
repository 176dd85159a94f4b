package notify_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/notify"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

func TestRender_WithoutCoordinatesOmitsMapLinks(t *testing.T) {
	r, err := notify.NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	n := sampleNotification()
	n.Event.Location = types.Location{
		Country: "Local", City: "Internal",
		AccuracyMeters: 50000, Source: types.SourceLocalNetwork,
	}

	msg, err := r.Render(n)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(msg.Body, "maps") {
		t.Errorf("unexpected map links:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "Internal, Local") || !strings.Contains(msg.Body, "~50.0km") {
		t.Errorf("unexpected body:\n%s", msg.Body)
	}
}

func TestNewRendererFromFile_CustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.tmpl")
	if err := os.WriteFile(path, []byte(`{{.DocumentID}} opened by {{.Recipient}} near {{.City}} ({{.Accuracy}})`), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	r, err := notify.NewRendererFromFile(path)
	if err != nil {
		t.Fatalf("NewRendererFromFile: %v", err)
	}
	msg, err := r.Render(sampleNotification())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if msg.Body != "DOC1 opened by Alice near New York (~15m)" {
		t.Errorf("body = %q", msg.Body)
	}
}

func TestNewRenderer_BadTemplate(t *testing.T) {
	if _, err := notify.NewRenderer("{{.Nope"); err == nil {
		t.Error("expected parse error")
	}
}
