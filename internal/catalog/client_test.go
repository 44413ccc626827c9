package catalog

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets", r.URL.Path)
		assert.Equal(t, "projects/soil-moisture/assets/SM", r.URL.Query().Get("parent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"assets":[
			{"id":"projects/soil-moisture/assets/SM/SM2019Valparaiso_GCOM_mes1","name":"SM2019Valparaiso_GCOM_mes1"},
			{"id":"projects/soil-moisture/assets/SM/SM2019Valparaiso_GCOM_mes2","name":"SM2019Valparaiso_GCOM_mes2"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	entries, err := client.List(context.Background(), "projects/soil-moisture/assets/SM")

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SM2019Valparaiso_GCOM_mes1", entries[0].RawName)
	assert.Equal(t, "projects/soil-moisture/assets/SM/SM2019Valparaiso_GCOM_mes1", entries[0].ID)
}

func TestListUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.List(context.Background(), "projects/x")

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "list", unavailable.Op)
	assert.Equal(t, "projects/x", unavailable.Path)

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/"+url.PathEscape("projects/x/assets/LST_2021"), r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"projects/x/assets/LST_2021","name":"LST_2021"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	meta, err := client.Get(context.Background(), "projects/x/assets/LST_2021")

	require.NoError(t, err)
	assert.Equal(t, "projects/x/assets/LST_2021", meta.ID)
}

func TestExists(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"present", http.StatusOK, true},
		{"absent", http.StatusNotFound, false},
		{"probe failure reads as absent", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusOK {
					w.Write([]byte(`{"id":"projects/x/assets/a"}`))
					return
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "")
			assert.Equal(t, tt.want, client.Exists(context.Background(), "projects/x/assets/a"))
		})
	}
}

func TestDownload(t *testing.T) {
	content := []byte("raster bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/"+url.PathEscape("projects/x/assets/a")+"/data", r.URL.EscapedPath())
		w.Write(content)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	var buf bytes.Buffer
	err := client.Download(context.Background(), "projects/x/assets/a", &buf)

	require.NoError(t, err)
	assert.Equal(t, content, buf.Bytes())
}

func TestDownloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	var buf bytes.Buffer
	err := client.Download(context.Background(), "projects/x/assets/a", &buf)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Zero(t, buf.Len())
}

func TestWithTimeout(t *testing.T) {
	client := NewClient("http://unused", "", WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)

	client = NewClient("http://unused", "", WithTimeout(0))
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout, "non-positive keeps the default")

	client = NewClient("http://unused", "token", WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout, "applies over the authenticated client too")
}

func TestAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		w.Write([]byte(`{"assets":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekrit")
	_, err := client.List(context.Background(), "projects/x")
	require.NoError(t, err)
}
