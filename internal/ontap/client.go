package ontap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Options configures a Client.
type Options struct {
	// Cluster is the management IP or hostname of the ONTAP cluster.
	Cluster  string
	Username string
	Password string

	// InsecureTLS disables certificate verification. Common on clusters
	// with self-signed management certificates.
	InsecureTLS bool

	// RequestTimeout bounds a single API call. Defaults to 60s.
	RequestTimeout time.Duration

	// CutoverWindow is the cutover time window in seconds passed to the
	// move operation. Defaults to 30.
	CutoverWindow int

	// CutoverAction is what the cluster does when cutover is delayed:
	// retry, defer, abort or force. Defaults to retry.
	CutoverAction string

	// BaseURL overrides the https://<cluster>/api default. Used by tests.
	BaseURL string
}

// Client wraps the ONTAP REST API for volume move operations.
type Client struct {
	baseURL       string
	username      string
	password      string
	cutoverWindow int
	cutoverAction string
	httpClient    *http.Client

	mu      sync.Mutex
	moveIDs map[string]string // volume name -> move UUID
}

// NewClient creates a new ONTAP REST client.
func NewClient(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.CutoverWindow <= 0 {
		opts.CutoverWindow = 30
	}
	if opts.CutoverAction == "" {
		opts.CutoverAction = "retry"
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s/api", opts.Cluster)
	}

	transport := http.DefaultTransport
	if opts.InsecureTLS {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // Opt-in for self-signed cluster certs
		}
	}

	return &Client{
		baseURL:       baseURL,
		username:      opts.Username,
		password:      opts.Password,
		cutoverWindow: opts.CutoverWindow,
		cutoverAction: opts.CutoverAction,
		httpClient: &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: transport,
		},
		moveIDs: make(map[string]string),
	}
}

// apiErrorBody is the error envelope returned by the ONTAP REST API.
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// do issues a request and decodes the JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
		var envelope apiErrorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// Ping verifies connectivity by fetching the cluster resource.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/cluster", nil, nil, nil)
}

// LookupVolume resolves a volume by name.
func (c *Client) LookupVolume(ctx context.Context, name string) (*VolumeInfo, error) {
	query := url.Values{}
	query.Set("name", name)
	query.Set("fields", "uuid,name,size,svm.name,aggregates.name")

	var result struct {
		Records []struct {
			UUID string `json:"uuid"`
			Name string `json:"name"`
			Size int64  `json:"size"`
			SVM  struct {
				Name string `json:"name"`
			} `json:"svm"`
			Aggregates []struct {
				Name string `json:"name"`
			} `json:"aggregates"`
		} `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/storage/volumes", query, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, &APIError{
			Kind:       ErrKindNotFound,
			StatusCode: 404,
			Message:    fmt.Sprintf("volume %q not found", name),
		}
	}

	rec := result.Records[0]
	info := &VolumeInfo{
		Name:      rec.Name,
		UUID:      rec.UUID,
		SVM:       rec.SVM.Name,
		SizeBytes: rec.Size,
	}
	if len(rec.Aggregates) > 0 {
		info.Aggregate = rec.Aggregates[0].Name
	}
	return info, nil
}

// resolveAggregate returns the UUID of the destination aggregate. A
// node-only destination picks the aggregate on that node with the most
// available space.
func (c *Client) resolveAggregate(ctx context.Context, dest Destination) (string, error) {
	query := url.Values{}
	query.Set("fields", "uuid,name,space.block_storage.available")
	switch {
	case dest.Aggregate != "":
		query.Set("name", dest.Aggregate)
	case dest.Node != "":
		query.Set("node.name", dest.Node)
	default:
		return "", &APIError{
			Kind:    ErrKindInvalidDestination,
			Message: "no destination node or aggregate specified",
		}
	}

	var result struct {
		Records []struct {
			UUID  string `json:"uuid"`
			Name  string `json:"name"`
			Space struct {
				BlockStorage struct {
					Available int64 `json:"available"`
				} `json:"block_storage"`
			} `json:"space"`
		} `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/storage/aggregates", query, nil, &result); err != nil {
		return "", err
	}
	if len(result.Records) == 0 {
		return "", &APIError{
			Kind:       ErrKindInvalidDestination,
			StatusCode: 404,
			Message:    fmt.Sprintf("no aggregate matches %s", dest),
		}
	}

	best := result.Records[0]
	for _, rec := range result.Records[1:] {
		if rec.Space.BlockStorage.Available > best.Space.BlockStorage.Available {
			best = rec
		}
	}
	return best.UUID, nil
}

// SubmitMove starts a volume move to the given destination.
func (c *Client) SubmitMove(ctx context.Context, volume string, dest Destination) error {
	info, err := c.LookupVolume(ctx, volume)
	if err != nil {
		return err
	}

	aggrUUID, err := c.resolveAggregate(ctx, dest)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"volume": map[string]string{
			"uuid": info.UUID,
		},
		"destination_aggregate": map[string]string{
			"uuid": aggrUUID,
		},
		"cutover_window": c.cutoverWindow,
		"cutover_action": c.cutoverAction,
	}

	var created struct {
		UUID string `json:"uuid"`
	}
	if err := c.do(ctx, http.MethodPost, "/storage/volume-moves", nil, payload, &created); err != nil {
		return err
	}

	if created.UUID != "" {
		c.mu.Lock()
		c.moveIDs[volume] = created.UUID
		c.mu.Unlock()
	}
	return nil
}

// FindActiveMove returns the in-flight move for a volume, or nil if the
// volume has no non-terminal move on the cluster.
func (c *Client) FindActiveMove(ctx context.Context, volume string) (*MoveStatus, error) {
	status, err := c.findMove(ctx, volume)
	if err != nil {
		return nil, err
	}
	if status == nil || status.State.Terminal() {
		return nil, nil
	}
	return status, nil
}

// PollMove returns the current state of a volume's move.
func (c *Client) PollMove(ctx context.Context, volume string) (*MoveStatus, error) {
	status, err := c.findMove(ctx, volume)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, &APIError{
			Kind:       ErrKindNotFound,
			StatusCode: 404,
			Message:    fmt.Sprintf("no move found for volume %q", volume),
		}
	}
	return status, nil
}

// findMove lists volume moves and picks the one for the given volume,
// preferring a previously recorded move UUID.
func (c *Client) findMove(ctx context.Context, volume string) (*MoveStatus, error) {
	c.mu.Lock()
	knownUUID := c.moveIDs[volume]
	c.mu.Unlock()

	query := url.Values{}
	query.Set("fields", "uuid,volume.name,state,percent_complete,messages")
	query.Set("volume.name", volume)

	var result struct {
		Records []struct {
			UUID   string `json:"uuid"`
			Volume struct {
				Name string `json:"name"`
			} `json:"volume"`
			State           string `json:"state"`
			PercentComplete int    `json:"percent_complete"`
			Messages        []struct {
				Message string `json:"message"`
			} `json:"messages"`
		} `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/storage/volume-moves", query, nil, &result); err != nil {
		return nil, err
	}

	for _, rec := range result.Records {
		if rec.Volume.Name != volume {
			continue
		}
		if knownUUID != "" && rec.UUID != knownUUID {
			continue
		}
		status := &MoveStatus{
			UUID:            rec.UUID,
			Volume:          rec.Volume.Name,
			State:           MoveState(rec.State),
			PercentComplete: rec.PercentComplete,
		}
		if len(rec.Messages) > 0 {
			status.Message = rec.Messages[len(rec.Messages)-1].Message
		}
		c.mu.Lock()
		c.moveIDs[volume] = rec.UUID
		c.mu.Unlock()
		return status, nil
	}
	return nil, nil
}

// AbortMove cancels a volume's in-flight move.
func (c *Client) AbortMove(ctx context.Context, volume string) error {
	status, err := c.findMove(ctx, volume)
	if err != nil {
		return err
	}
	if status == nil {
		return &APIError{
			Kind:       ErrKindNotFound,
			StatusCode: 404,
			Message:    fmt.Sprintf("no move found for volume %q", volume),
		}
	}
	if status.State.Terminal() {
		return nil
	}

	payload := map[string]string{"state": "aborted"}
	return c.do(ctx, http.MethodPatch, "/storage/volume-moves/"+status.UUID, nil, payload, nil)
}
