package kubesec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/deepak-muley/nkpsec/internal/types"
)

const scoredResponse = `[
  {
    "object": "Deployment/api.production",
    "valid": true,
    "score": -26,
    "scoring": {
      "critical": [
        {
          "id": "Privileged",
          "selector": "containers[] .securityContext .privileged == true",
          "reason": "Privileged containers can allow almost completely unrestricted host access",
          "points": -30
        }
      ],
      "advise": [
        {
          "id": "ApparmorAny",
          "selector": ".metadata .annotations .\"container.apparmor.security.beta.kubernetes.io/nginx\"",
          "reason": "Well defined AppArmor policies may provide greater protection",
          "points": 3
        }
      ]
    }
  }
]`

func newScoringServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func newTestScanner(t *testing.T, endpoint string) *Scanner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	client, err := NewClient(logger, endpoint, ClientOptions{})
	require.NoError(t, err)
	return New(logger, client)
}

func newDeployment(name, namespace string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "app", Image: "nginx:1.27"}},
				},
			},
		},
	}
}

func TestScanner_Name(t *testing.T) {
	s := newTestScanner(t, "https://v2.kubesec.io/scan")
	assert.Equal(t, "kubesec", s.Name())
}

func TestNewClient_RejectsBadEndpoints(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewClient(logger, "", ClientOptions{})
	assert.Error(t, err)

	_, err = NewClient(logger, "ftp://v2.kubesec.io/scan", ClientOptions{})
	assert.Error(t, err)

	_, err = NewClient(logger, "https://", ClientOptions{})
	assert.Error(t, err)
}

func TestClient_ScanManifest(t *testing.T) {
	server := newScoringServer(t, scoredResponse)
	defer server.Close()

	client, err := NewClient(zaptest.NewLogger(t), server.URL, ClientOptions{})
	require.NoError(t, err)

	results, err := client.ScanManifest(context.Background(), []byte("kind: Deployment\n"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, -26, results[0].Score)
	require.Len(t, results[0].Scoring.Critical, 1)
	assert.Equal(t, "Privileged", results[0].Scoring.Critical[0].ID)
}

func TestClient_ScanManifest_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over capacity", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(zaptest.NewLogger(t), server.URL, ClientOptions{})
	require.NoError(t, err)

	_, err = client.ScanManifest(context.Background(), []byte("kind: Deployment\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestScan_ConvertsScoringToFindings(t *testing.T) {
	server := newScoringServer(t, scoredResponse)
	defer server.Close()

	target := types.Target{
		Cluster:   "mgmt",
		Clientset: fake.NewSimpleClientset(newDeployment("api", "production")),
	}

	s := newTestScanner(t, server.URL)
	findings, err := s.Scan(context.Background(), target, types.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, findings, 2)

	critical := findings[0]
	assert.Equal(t, types.FindingKindKubesec, critical.Kind)
	assert.Equal(t, types.SeverityCritical, critical.Severity)
	assert.Equal(t, "critical", critical.VendorSeverity)
	assert.Equal(t, "mgmt", critical.Cluster)
	assert.Equal(t, "production", critical.Namespace)
	assert.Equal(t, "Deployment/api", critical.Resource)
	assert.Equal(t, "Privileged", critical.Component)
	assert.Equal(t, -26, critical.Details["score"])
	assert.Equal(t, "F", critical.Details["grade"])

	advisory := findings[1]
	assert.Equal(t, types.SeverityLow, advisory.Severity)
	assert.Equal(t, "advise", advisory.VendorSeverity)
}

func TestScan_SeverityFilterDropsAdvisories(t *testing.T) {
	server := newScoringServer(t, scoredResponse)
	defer server.Close()

	target := types.Target{
		Cluster:   "mgmt",
		Clientset: fake.NewSimpleClientset(newDeployment("api", "production")),
	}

	s := newTestScanner(t, server.URL)
	findings, err := s.Scan(context.Background(), target, types.ScanOptions{
		Severity: types.NewSeverityFilter("critical"),
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "Privileged", findings[0].Component)
}

func TestScan_NamespaceScoped(t *testing.T) {
	server := newScoringServer(t, scoredResponse)
	defer server.Close()

	target := types.Target{
		Cluster: "mgmt",
		Clientset: fake.NewSimpleClientset(
			newDeployment("api", "production"),
			newDeployment("web", "staging"),
		),
	}

	s := newTestScanner(t, server.URL)
	findings, err := s.Scan(context.Background(), target, types.ScanOptions{
		Namespaces: []string{"staging"},
	})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.Equal(t, "staging", f.Namespace)
	}
}

func TestScan_UnreachableEndpointSkipsWorkload(t *testing.T) {
	target := types.Target{
		Cluster:   "mgmt",
		Clientset: fake.NewSimpleClientset(newDeployment("api", "production")),
	}

	s := newTestScanner(t, "http://127.0.0.1:1/scan")
	findings, err := s.Scan(context.Background(), target, types.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScanFiles(t *testing.T) {
	server := newScoringServer(t, scoredResponse)
	defer server.Close()

	path := filepath.Join(t.TempDir(), "deployment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: Deployment\n"), 0o644))

	s := newTestScanner(t, server.URL)
	findings, err := s.ScanFiles(context.Background(), []string{path}, types.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, path, findings[0].Details["file"])
	assert.Equal(t, "Deployment/api.production", findings[0].Resource)
	assert.Empty(t, findings[0].Cluster)
}

func TestScanFiles_MissingFile(t *testing.T) {
	s := newTestScanner(t, "https://v2.kubesec.io/scan")
	_, err := s.ScanFiles(context.Background(), []string{"/does/not/exist.yaml"}, types.ScanOptions{})
	require.Error(t, err)
}

func TestGrade(t *testing.T) {
	assert.Equal(t, "F", Grade(-30))
	assert.Equal(t, "C", Grade(0))
	assert.Equal(t, "B", Grade(7))
	assert.Equal(t, "A", Grade(12))
}
