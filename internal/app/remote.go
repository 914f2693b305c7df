package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ack acknowledges a timetable accepted by the remote endpoint
type Ack struct {
	RequestID  string
	StatusCode int
}

// RemoteClient posts timetables to a spreadsheet web app
type RemoteClient struct {
	url        string
	httpClient *http.Client
}

func NewRemoteClient(url string, httpClient *http.Client) *RemoteClient {
	return &RemoteClient{
		url:        strings.TrimSpace(url),
		httpClient: httpClient,
	}
}

// Configured reports whether an endpoint URL is set
func (c *RemoteClient) Configured() bool {
	return c != nil && c.url != ""
}

// Push submits the serialized timetable. The response body is discarded.
func (c *RemoteClient) Push(ctx context.Context, t Timetable) (Ack, error) {
	if !c.Configured() {
		return Ack{}, ErrRemoteNotConfigured
	}

	body, err := Serialize(t)
	if err != nil {
		return Ack{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrRemoteSync, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrRemoteSync, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Ack{}, fmt.Errorf("%w: unexpected status %d", ErrRemoteSync, resp.StatusCode)
	}

	return Ack{RequestID: requestID, StatusCode: resp.StatusCode}, nil
}

func DefaultRemoteHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
