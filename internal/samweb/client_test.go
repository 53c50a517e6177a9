package samweb

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atcsutton/ANNIEGrid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.SamWebConfig{BaseURL: srv.URL + "/sam/annie/api/", Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCountFiles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sam/annie/api/files/count", r.URL.Path)
		assert.Equal(t, "annie_beam_r4000", r.URL.Query().Get("defname"))
		w.Write([]byte("1234\n"))
	})

	n, err := c.CountFiles(context.Background(), "annie_beam_r4000")
	require.NoError(t, err)
	assert.Equal(t, 1234, n)
}

func TestCountFilesBadBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("lots"))
	})

	_, err := c.CountFiles(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lots")
}

func TestStartProject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sam/annie/api/startProject", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "annie_beam_20240102_030405", r.PostForm.Get("name"))
		assert.Equal(t, "annie", r.PostForm.Get("station"))
		assert.Equal(t, "annie", r.PostForm.Get("group"))
		assert.Equal(t, "annie_beam_r4000", r.PostForm.Get("defname"))
		w.Write([]byte("https://samweb.fnal.gov:8483/sam/annie/api/projects/annie/annie_beam_20240102_030405\n"))
	})

	p, err := c.StartProject(context.Background(), ProjectRequest{
		Name:    "annie_beam_20240102_030405",
		Station: "annie",
		Group:   "annie",
		DefName: "annie_beam_r4000",
	})
	require.NoError(t, err)
	assert.Equal(t, "annie_beam_20240102_030405", p.Name)
	assert.Equal(t, "https://samweb.fnal.gov:8483/sam/annie/api/projects/annie/annie_beam_20240102_030405", p.URL)
}

func TestErrorResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Definition not found"))
	})

	_, err := c.StartProject(context.Background(), ProjectRequest{Name: "p", DefName: "missing"})
	require.Error(t, err)

	var samErr *Error
	require.ErrorAs(t, err, &samErr)
	assert.Equal(t, http.StatusNotFound, samErr.Status)
	assert.Contains(t, samErr.Error(), "Definition not found")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.SamWebConfig{})
	assert.Error(t, err)

	_, err = NewClient(config.SamWebConfig{BaseURL: "https://example.invalid", Cert: "/nonexistent/proxy"})
	assert.Error(t, err)
}

func TestCADirTrustsGridCAs(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("7"))
	}))
	t.Cleanup(srv.Close)

	caDir := t.TempDir()
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(filepath.Join(caDir, "test-ca.pem"), block, 0o644))

	c, err := NewClient(config.SamWebConfig{BaseURL: srv.URL, CADir: caDir, Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	n, err := c.CountFiles(context.Background(), "annie_beam_r4000")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	untrusted, err := NewClient(config.SamWebConfig{BaseURL: srv.URL, CADir: t.TempDir(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { untrusted.Close() })

	_, err = untrusted.CountFiles(context.Background(), "annie_beam_r4000")
	assert.Error(t, err)
}

func TestCAFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"InCommon.pem", "a1b2c3d4.0", "InCommon.signing_policy"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "InCommon.pem"),
		filepath.Join(dir, "a1b2c3d4.0"),
	}, caFiles(dir))
	assert.Empty(t, caFiles(filepath.Join(dir, "missing")))
	assert.Empty(t, caFiles(""))
}
