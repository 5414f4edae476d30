package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 2 * time.Second

	// imageDownloadConcurrency bounds parallel screenshot downloads per job.
	imageDownloadConcurrency = 4
)

// Client talks to an external PDF parsing service over HTTP. The service
// follows a submit/poll/download shape: upload returns a job id, the job is
// polled until it reaches a terminal status, then page text and page
// screenshots are fetched.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// ClientConfig holds configuration for the parsing client.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
}

// NewClient creates a parsing client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

type uploadResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type resultResponse struct {
	Pages []resultPage `json:"pages"`
}

type resultPage struct {
	Page   int    `json:"page"`
	Text   string `json:"md"`
	Images []struct {
		Name string `json:"name"`
	} `json:"images"`
}

// Parse uploads the PDF, waits for the job to finish, and downloads page
// text and screenshots.
func (c *Client) Parse(ctx context.Context, pdfPath string) ([]Page, error) {
	jobID, err := c.upload(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("parse job submitted",
		slog.String("job_id", jobID), slog.String("file", filepath.Base(pdfPath)))

	if err := c.waitForJob(ctx, jobID); err != nil {
		return nil, err
	}

	result, err := c.fetchResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(pdfPath), ErrEmptyDocument)
	}

	pages := make([]Page, len(result.Pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageDownloadConcurrency)

	for i, rp := range result.Pages {
		pages[i] = Page{Number: rp.Page, Text: rp.Text}
		if pages[i].Number == 0 {
			pages[i].Number = i + 1
		}
		if len(rp.Images) == 0 {
			continue
		}
		imageName := rp.Images[0].Name
		g.Go(func() error {
			img, err := c.fetchImage(gctx, jobID, imageName)
			if err != nil {
				return err
			}
			pages[i].Image = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pages, nil
}

func (c *Client) upload(ctx context.Context, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(pdfPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy pdf into form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/parsing/upload", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("upload pdf: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("upload pdf: %w: empty job id", ErrParseFailed)
	}
	return resp.ID, nil
}

func (c *Client) waitForJob(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.fetchJob(ctx, jobID)
		if err != nil {
			return err
		}
		switch job.Status {
		case "SUCCESS":
			return nil
		case "ERROR", "CANCELLED":
			return fmt.Errorf("job %s: %w: %s", jobID, ErrParseFailed, job.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchJob(ctx context.Context, jobID string) (jobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/parsing/job/%s", c.baseURL, jobID), nil)
	if err != nil {
		return jobResponse{}, fmt.Errorf("build job request: %w", err)
	}
	c.authorize(req)

	var resp jobResponse
	if err := c.do(req, &resp); err != nil {
		return jobResponse{}, fmt.Errorf("poll job %s: %w", jobID, err)
	}
	return resp, nil
}

func (c *Client) fetchResult(ctx context.Context, jobID string) (resultResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/parsing/job/%s/result/json", c.baseURL, jobID), nil)
	if err != nil {
		return resultResponse{}, fmt.Errorf("build result request: %w", err)
	}
	c.authorize(req)

	var resp resultResponse
	if err := c.do(req, &resp); err != nil {
		return resultResponse{}, fmt.Errorf("fetch result %s: %w", jobID, err)
	}
	return resp, nil
}

func (c *Client) fetchImage(ctx context.Context, jobID, name string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/parsing/job/%s/result/image/%s", c.baseURL, jobID, name), nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image %s: %w: status %d", name, ErrParseFailed, resp.StatusCode)
	}

	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", name, err)
	}
	return img, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrParseFailed, resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ DocumentParser = (*Client)(nil)
