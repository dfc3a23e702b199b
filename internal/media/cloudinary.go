package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIBase = "https://api.cloudinary.com/v1_1"
	uploadFolder   = "snapgram"
)

type Cloudinary struct {
	apiKey     string
	apiSecret  string
	cloudName  string
	apiBase    string
	httpClient *http.Client
	now        func() time.Time
}

// Asset is what Cloudinary reports back for a stored upload.
type Asset struct {
	SecureURL    string `json:"secure_url"`
	PublicID     string `json:"public_id"`
	ResourceType string `json:"resource_type"`
}

type cloudinaryResponse struct {
	Asset
	Result string `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCloudinary parses a CLOUDINARY_URL of the form
// cloudinary://<api_key>:<api_secret>@<cloud_name>.
func NewCloudinary(rawURL string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}

	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme")
	}

	apiKey := parsed.User.Username()
	apiSecret, ok := parsed.User.Password()
	if !ok {
		return nil, fmt.Errorf("missing cloudinary api secret")
	}
	cloudName := parsed.Hostname()
	if apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, fmt.Errorf("invalid cloudinary credentials")
	}

	return &Cloudinary{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		cloudName: cloudName,
		apiBase:   defaultAPIBase,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		now: time.Now,
	}, nil
}

// WithAPIBase points the client at another API root, e.g. a test server.
func (c *Cloudinary) WithAPIBase(base string) *Cloudinary {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

// Upload stores a data URI (or remote URL) and lets Cloudinary detect
// whether it is an image or a video.
func (c *Cloudinary) Upload(ctx context.Context, source string) (Asset, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Asset{}, fmt.Errorf("empty media source")
	}

	params := map[string]string{
		"folder":    uploadFolder,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	resp, err := c.post(ctx, "auto/upload", params, map[string]string{"file": source})
	if err != nil {
		return Asset{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.SecureURL == "" {
		return Asset{}, fmt.Errorf("cloudinary response missing secure_url")
	}
	return resp.Asset, nil
}

// Destroy removes an asset and returns Cloudinary's result string
// ("ok" or "not found").
func (c *Cloudinary) Destroy(ctx context.Context, publicID, resourceType string) (string, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return "", fmt.Errorf("empty public id")
	}
	if resourceType == "" {
		resourceType = "image"
	}

	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	resp, err := c.post(ctx, resourceType+"/destroy", params, nil)
	if err != nil {
		return "", fmt.Errorf("cloudinary destroy: %w", err)
	}
	return resp.Result, nil
}

func (c *Cloudinary) post(ctx context.Context, action string, signed, unsigned map[string]string) (cloudinaryResponse, error) {
	fields := make(map[string]string, len(signed)+len(unsigned)+2)
	for k, v := range signed {
		fields[k] = v
	}
	for k, v := range unsigned {
		fields[k] = v
	}
	fields["api_key"] = c.apiKey
	fields["signature"] = c.sign(signed)

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		for k, v := range fields {
			if err := writer.WriteField(k, v); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write %s field: %w", k, err))
				return
			}
		}
		if err := writer.Close(); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("close multipart writer: %w", err))
			return
		}
		_ = pw.Close()
	}()

	endpoint := fmt.Sprintf("%s/%s/%s", c.apiBase, c.cloudName, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return cloudinaryResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("read response: %w", err)
	}

	var parsed cloudinaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return cloudinaryResponse{}, fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return cloudinaryResponse{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	return parsed, nil
}

// sign follows Cloudinary's scheme: sorted key=value pairs joined by '&',
// followed by the secret, hashed with SHA-1.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}
