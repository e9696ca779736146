package drive

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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"minuteman/internal/config"
	"minuteman/internal/services"
)

const defaultAPIBase = "https://www.googleapis.com/drive/v3"

// File is one object in the watched folder.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// WatchChannel is a registered push notification channel and its lease.
type WatchChannel struct {
	ID         string
	ResourceID string
	Expiration time.Time
}

// Client talks to the cloud folder API.
type Client struct {
	apiBase    string
	token      string
	folderID   string
	secret     string
	httpClient *http.Client
}

// NewClient builds a client from the drive config section.
func NewClient(cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.Drive.AccessToken) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "drive", "new_client", "access token is required", nil)
	}
	if strings.TrimSpace(cfg.Drive.FolderID) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "drive", "new_client", "folder id is required", nil)
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.Drive.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		apiBase:    apiBase,
		token:      cfg.Drive.AccessToken,
		folderID:   cfg.Drive.FolderID,
		secret:     cfg.Drive.WebhookSecret,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// ListRecent lists files in the watched folder, newest first.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]File, error) {
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", c.folderID))
	query.Set("orderBy", "modifiedTime desc")
	query.Set("pageSize", strconv.Itoa(limit))
	query.Set("fields", "files(id,name,mimeType,modifiedTime)")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/files?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}

	var result struct {
		Files []File `json:"files"`
	}
	if err := c.do(req, "list_recent", &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Download fetches a file's content.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/files/%s?alt=media", c.apiBase, url.PathEscape(fileID)), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "drive", "download", "request failed", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "download"); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "drive", "download", "read body", err)
	}
	return content, nil
}

// Upload stores a document in the given folder using a multipart/related
// request carrying metadata and content in one round trip.
func (c *Client) Upload(ctx context.Context, folderID, name, mimeType string, content []byte) (string, error) {
	if folderID == "" {
		folderID = c.folderID
	}
	metadata, err := json.Marshal(map[string]any{
		"name":    name,
		"parents": []string{folderID},
	})
	if err != nil {
		return "", fmt.Errorf("encode upload metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return "", fmt.Errorf("write metadata part: %w", err)
	}
	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", mimeType)
	bodyPart, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return "", fmt.Errorf("create content part: %w", err)
	}
	if _, err := bodyPart.Write(content); err != nil {
		return "", fmt.Errorf("write content part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/upload/files?uploadType=multipart", &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(req, "upload", &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// RegisterWatch opens a push notification channel on the watched folder.
// The returned expiration is the lease the watch loop must renew.
func (c *Client) RegisterWatch(ctx context.Context, callbackURL string, lease time.Duration) (*WatchChannel, error) {
	if callbackURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "drive", "register_watch", "callback url is required", nil)
	}
	channelID := uuid.NewString()
	expiration := time.Now().Add(lease)
	body, err := json.Marshal(map[string]any{
		"id":         channelID,
		"type":       "web_hook",
		"address":    callbackURL,
		"token":      c.secret,
		"expiration": expiration.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode watch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/files/%s/watch", c.apiBase, url.PathEscape(c.folderID)), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build watch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		ID         string `json:"id"`
		ResourceID string `json:"resourceId"`
		Expiration int64  `json:"expiration,string"`
	}
	if err := c.do(req, "register_watch", &result); err != nil {
		return nil, err
	}
	channel := &WatchChannel{ID: result.ID, ResourceID: result.ResourceID, Expiration: expiration}
	if channel.ID == "" {
		channel.ID = channelID
	}
	if result.Expiration > 0 {
		channel.Expiration = time.UnixMilli(result.Expiration)
	}
	return channel, nil
}

// StopWatch closes a push notification channel.
func (c *Client) StopWatch(ctx context.Context, channel *WatchChannel) error {
	if channel == nil || channel.ID == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"id":         channel.ID,
		"resourceId": channel.ResourceID,
	})
	if err != nil {
		return fmt.Errorf("encode stop request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/channels/stop", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build stop request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "stop_watch", nil)
}

func (c *Client) do(req *http.Request, operation string, result any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "drive", operation, "request failed", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, operation); err != nil {
		return err
	}
	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return services.Wrap(services.ErrParse, "drive", operation, "decode response", err)
	}
	return nil
}

func checkStatus(resp *http.Response, operation string) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := fmt.Sprintf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return services.Wrap(services.ErrTransient, "drive", operation, detail, nil)
	}
	if resp.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "drive", operation, detail, nil)
	}
	return services.Wrap(services.ErrValidation, "drive", operation, detail, nil)
}
