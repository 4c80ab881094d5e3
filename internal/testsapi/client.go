// Package testsapi is the typed client for the student tests endpoints.
package testsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Client wraps an apiclient.Client with the tests endpoints.
type Client struct {
	api       *apiclient.Client
	supersede apiclient.Superseder
}

// New creates a Client.
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// Login authenticates a student and stores the session token.
func (c *Client) Login(ctx context.Context, nisn, password string) (*model.Student, error) {
	resp, err := c.api.Post(ctx, "/auth/student/login", model.StudentLoginRequest{
		NISN:     nisn,
		Password: password,
	}, apiclient.WithPriority(apiclient.PriorityHigh))
	if err != nil {
		return nil, err
	}

	var out model.StudentLoginResponse
	if err := apiclient.DecodeData(resp, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("login response without token")
	}
	if err := c.api.Session().SetToken(out.Token); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &out.Student, nil
}

// Logout ends the server session and clears the local token either way.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.api.Post(ctx, "/auth/student/logout", nil)
	if clearErr := c.api.Session().Clear(); clearErr != nil {
		return fmt.Errorf("clear session: %w", clearErr)
	}
	if errors.Is(err, apiclient.ErrSessionExpired) {
		return nil
	}
	return err
}

// Available lists the student's tests. A newer call supersedes an older
// one still in flight.
func (c *Client) Available(ctx context.Context) (*model.TestBuckets, error) {
	ctx, done := c.supersede.Begin(ctx, "tests:available")
	defer done()

	resp, err := c.api.Get(ctx, "/tests/available")
	if err != nil {
		return nil, err
	}
	var out model.TestBuckets
	if err := apiclient.DecodeData(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Content downloads the test paper. A newer fetch for the same test cancels
// an older one.
func (c *Client) Content(ctx context.Context, testID uuid.UUID) (*model.Content, error) {
	ctx, done := c.supersede.Begin(ctx, "tests:content:"+testID.String())
	defer done()

	resp, err := c.api.Get(ctx, "/tests/"+testID.String()+"/content",
		apiclient.WithAccept("application/pdf, text/plain"),
		apiclient.WithPriority(apiclient.PriorityHigh),
	)
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/pdf" {
		return &model.Content{Type: model.ContentTypePDF, PDF: resp.Body}, nil
	}
	return &model.Content{Type: model.ContentTypeText, Text: string(resp.Body)}, nil
}

// Submit uploads the answer file. isLate is the client's classification at
// submit time.
func (c *Client) Submit(ctx context.Context, testID uuid.UUID, file model.AnswerFile, isLate bool) (*model.Submission, error) {
	body := apiclient.NewMultipart().
		AddField("testId", testID.String()).
		AddField("isLate", strconv.FormatBool(isLate)).
		AddFile("file", file.Name, func() (io.ReadCloser, error) { return file.Open() })

	resp, err := c.api.Post(ctx, "/tests/submit", body, apiclient.WithPriority(apiclient.PriorityHigh))
	if err != nil {
		if apiclient.StatusCode(err) == http.StatusConflict {
			return nil, fmt.Errorf("%w: %w", model.ErrAlreadySubmitted, err)
		}
		return nil, err
	}

	var out struct {
		Submission model.Submission `json:"submission"`
	}
	if err := apiclient.DecodeData(resp, &out); err != nil {
		return nil, err
	}
	return &out.Submission, nil
}

// ReportCompromise tells the server the student left fullscreen and returns
// the server's time for the flag.
func (c *Client) ReportCompromise(ctx context.Context, testID uuid.UUID) (time.Time, error) {
	resp, err := c.api.Post(ctx, "/tests/"+testID.String()+"/compromise", nil)
	if err != nil {
		return time.Time{}, err
	}
	var out struct {
		FlaggedAt time.Time `json:"flagged_at"`
	}
	if err := apiclient.DecodeData(resp, &out); err != nil {
		return time.Time{}, err
	}
	if out.FlaggedAt.IsZero() {
		return time.Time{}, errors.New("compromise report not acknowledged")
	}
	return out.FlaggedAt, nil
}

// ResetCompromise clears a student's compromise flag. Staff only.
func (c *Client) ResetCompromise(ctx context.Context, testID uuid.UUID, studentID int) error {
	_, err := c.api.Post(ctx, fmt.Sprintf("/tests/%s/reset-compromise/%d", testID, studentID), nil)
	return err
}
