// Package blobstore delivers collected rasters to a Drive-style file
// store over its REST API, authenticating with an OAuth2 refresh token.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/humus/internal/common"
)

const uploadTimeout = 5 * time.Minute

// FolderMimeType marks folder entries in the file store.
const FolderMimeType = "application/vnd.google-apps.folder"

// Client is a Drive-style blob store client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewClient builds a client from the configured OAuth2 refresh-token
// credentials. Fails when the refresh token is missing; there is no
// unauthenticated mode against the real store.
func NewClient(cfg common.DriveConfig, logger arbor.ILogger) (*Client, error) {
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("drive refresh token is not set (HUMUS_DRIVE_REFRESH_TOKEN)")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("drive OAuth2 client credentials are not set")
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: cfg.TokenURL,
		},
	}

	httpClient := oauth2.NewClient(context.Background(), conf.TokenSource(context.Background(), &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}))
	httpClient.Timeout = uploadTimeout

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// NewClientWithHTTP builds a client over a caller-supplied HTTP client.
// Used by tests against httptest servers.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger arbor.ILogger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

type fileList struct {
	Files []fileResource `json:"files"`
}

type fileResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetOrCreateFolder finds a folder by name, creating it when absent, and
// returns its id.
func (c *Client) GetOrCreateFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", name, FolderMimeType)
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", "files(id, name)")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/drive/v3/files?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to list folders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("folder lookup failed (status %d): %s", resp.StatusCode, string(body))
	}

	var list fileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("failed to decode folder list: %w", err)
	}

	if len(list.Files) > 0 {
		c.logger.Debug().
			Str("folder", name).
			Str("folder_id", list.Files[0].ID).
			Msg("Found existing folder")
		return list.Files[0].ID, nil
	}

	return c.createFolder(ctx, name)
}

func (c *Client) createFolder(ctx context.Context, name string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"name":     name,
		"mimeType": FolderMimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode folder metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drive/v3/files?fields=id", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("folder creation failed (status %d): %s", resp.StatusCode, string(body))
	}

	var folder fileResource
	if err := json.NewDecoder(resp.Body).Decode(&folder); err != nil {
		return "", fmt.Errorf("failed to decode folder resource: %w", err)
	}

	c.logger.Info().
		Str("folder", name).
		Str("folder_id", folder.ID).
		Msg("Created folder")

	return folder.ID, nil
}

// Upload sends a local file into the given folder using a multipart
// upload (metadata part + content part) and returns the remote file id.
func (c *Client) Upload(ctx context.Context, folderID, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	metadata, err := json.Marshal(map[string]interface{}{
		"name":    name,
		"parents": []string{folderID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode file metadata: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create metadata part: %w", err)
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata part: %w", err)
	}

	contentHeader := textproto.MIMEHeader{}
	contentHeader.Set("Content-Type", contentType(name))
	contentPart, err := writer.CreatePart(contentHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create content part: %w", err)
	}
	if _, err := io.Copy(contentPart, f); err != nil {
		return "", fmt.Errorf("failed to write content part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	uploadURL := c.baseURL + "/upload/drive/v3/files?uploadType=multipart&fields=id,name"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed for %s (status %d): %s", name, resp.StatusCode, string(respBody))
	}

	var uploaded fileResource
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	c.logger.Info().
		Str("name", uploaded.Name).
		Str("file_id", uploaded.ID).
		Msg("Uploaded file")

	return uploaded.ID, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
