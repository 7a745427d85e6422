package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"propsync/internal/model"

	"github.com/imroc/req/v3"
	"golang.org/x/oauth2"
)

const (
	v1PropertiesExists = "/api/v1/properties/exists"
	v1Properties       = "/api/v1/properties"
	v1Attachments      = "/api/v1/attachments"
	v1AttachmentChunks = "/api/v1/attachments/chunks"
	v1AttachmentSum    = "/api/v1/attachments/checksum"
	v1ChunkDownload    = "/api/v1/attachments/{uuid}/chunks/{index}"
)

var UserAgent = fmt.Sprintf("propsync/0.1 (%s; %s)", runtime.GOOS, runtime.GOARCH)

type ClientOptions struct {
	BaseURL     string
	Timeout     time.Duration
	TokenSource oauth2.TokenSource
}

// Client is the HTTP implementation of API.
type Client struct {
	client *req.Client
}

var _ API = (*Client)(nil)

func NewClient(opts ClientOptions) *Client {
	c := req.C().
		SetBaseURL(opts.BaseURL).
		SetUserAgent(UserAgent).
		SetCommonErrorResult(&APIError{})

	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}

	if ts := opts.TokenSource; ts != nil {
		c.OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
			tok, err := ts.Token()
			if err != nil {
				return fmt.Errorf("failed to obtain access token: %w", err)
			}
			r.SetBearerAuthToken(tok.AccessToken)
			return nil
		})
	}

	return &Client{client: c}
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type putResponse struct {
	Result model.PutResult `json:"result"`
}

type attachmentRequest struct {
	Length int64 `json:"length"`
}

type checksumRequest struct {
	Checksum string `json:"checksum"`
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	var out existsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetSuccessResult(&out).
		Get(v1PropertiesExists)

	if err := handleAPIError(resp, err, "exists"); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) Put(ctx context.Context, in model.PutRequest) (model.PutResult, error) {
	var out putResponse
	r := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", in.Key).
		SetBody(&in).
		SetSuccessResult(&out)
	setBulk(r, in.Bulk)

	resp, err := r.Put(v1Properties)
	if err := handleAPIError(resp, err, "put"); err != nil {
		return "", err
	}
	return out.Result, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		Delete(v1Properties)

	return handleAPIError(resp, err, "delete")
}

func (c *Client) List(ctx context.Context, filter string) ([]model.Property, error) {
	var out []model.Property
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("filter", filter).
		SetSuccessResult(&out).
		Get(v1Properties)

	if err := handleAPIError(resp, err, "list"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PutAttachment(ctx context.Context, key, name, collection string, length int64, bulk bool) error {
	r := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":        key,
			"name":       name,
			"collection": collection,
		}).
		SetBody(&attachmentRequest{Length: length})
	setBulk(r, bulk)

	resp, err := r.Put(v1Attachments)
	return handleAPIError(resp, err, "put attachment")
}

func (c *Client) PutChunk(ctx context.Context, key, name string, index int, data []byte, bulk bool) error {
	r := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":   key,
			"name":  name,
			"index": strconv.Itoa(index),
		}).
		SetContentType("application/octet-stream").
		SetBodyBytes(data)
	setBulk(r, bulk)

	resp, err := r.Put(v1AttachmentChunks)
	return handleAPIError(resp, err, "put chunk")
}

func (c *Client) PutChecksum(ctx context.Context, key, name, checksum string, bulk bool) error {
	r := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetQueryParam("name", name).
		SetBody(&checksumRequest{Checksum: checksum})
	setBulk(r, bulk)

	resp, err := r.Put(v1AttachmentSum)
	return handleAPIError(resp, err, "put checksum")
}

func (c *Client) ListAttachments(ctx context.Context, key, collection string) ([]model.Attachment, error) {
	var out []model.Attachment
	r := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetSuccessResult(&out)
	if collection != "" {
		r.SetQueryParam("collection", collection)
	}

	resp, err := r.Get(v1Attachments)
	if err := handleAPIError(resp, err, "list attachments"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetChunk(ctx context.Context, uuid string, index int) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("uuid", uuid).
		SetPathParam("index", strconv.Itoa(index)).
		Get(v1ChunkDownload)

	if err := handleAPIError(resp, err, "get chunk"); err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	data := resp.Bytes()
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func handleAPIError(resp *req.Response, requestErr error, op string) error {
	if requestErr != nil {
		return &UnavailableError{Op: op, Err: requestErr, Timeout: isTimeout(requestErr)}
	}

	if !resp.IsErrorState() {
		return nil
	}

	if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
		apiErr.Status = resp.StatusCode
		if resp.StatusCode >= http.StatusInternalServerError {
			return &UnavailableError{Op: op, Err: apiErr}
		}
		return fmt.Errorf("remote %s: %w", op, apiErr)
	}

	status := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.String())
	if resp.StatusCode >= http.StatusInternalServerError {
		return &UnavailableError{Op: op, Err: status}
	}
	return fmt.Errorf("remote %s: %w", op, &APIError{
		Code:    CodeUnknown,
		Message: resp.String(),
		Status:  resp.StatusCode,
	})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if netErr, ok := errors.AsType[net.Error](err); ok {
		return netErr.Timeout()
	}
	return false
}

// setBulk tags r as part of an import so the server skips per-item logging.
func setBulk(r *req.Request, bulk bool) {
	if bulk {
		r.SetQueryParam("bulk", "true")
	}
}
