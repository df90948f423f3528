package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
)

// JobAPI is the REST surface the delivery subsystem polls and submits
// through. The production implementation is HTTPJobAPI; tests install fakes.
type JobAPI interface {
	SubmitJob(ctx context.Context, query, sessionID, conversationID, executionMode string) (string, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	CancelJob(ctx context.Context, jobID string) error
	OngoingJobs(ctx context.Context, conversationID string) ([]*model.Job, error)
	JobHistory(ctx context.Context, limit int) ([]*model.Job, error)
}

type HTTPJobAPI struct {
	base   string // e.g. http://host:8080/api/v1
	token  string
	client *http.Client
}

func NewHTTPJobAPI(base, token string) *HTTPJobAPI {
	return &HTTPJobAPI{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type submitRequest struct {
	Query          string `json:"query"`
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	ExecutionMode  string `json:"execution_mode"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

func (a *HTTPJobAPI) SubmitJob(ctx context.Context, query, sessionID, conversationID, executionMode string) (string, error) {
	body, _ := json.Marshal(submitRequest{
		Query:          query,
		SessionID:      sessionID,
		ConversationID: conversationID,
		ExecutionMode:  executionMode,
	})
	var resp submitResponse
	if err := a.do(ctx, http.MethodPost, "/jobs", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

type jobPayload struct {
	JobID          string    `json:"job_id"`
	Query          string    `json:"query"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	Status         string    `json:"status"`
	Result         string    `json:"result,omitempty"`
	Error          string    `json:"error,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

func (p *jobPayload) toModel() *model.Job {
	return &model.Job{
		ID:             p.JobID,
		Query:          p.Query,
		SessionID:      p.SessionID,
		ConversationID: p.ConversationID,
		Status:         model.JobStatus(p.Status),
		Result:         p.Result,
		LastError:      p.Error,
		SubmittedAt:    p.SubmittedAt,
	}
}

func (a *HTTPJobAPI) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var p jobPayload
	if err := a.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, &p); err != nil {
		return nil, err
	}
	return p.toModel(), nil
}

func (a *HTTPJobAPI) CancelJob(ctx context.Context, jobID string) error {
	return a.do(ctx, http.MethodPost, "/jobs/"+jobID+"/cancel", nil, nil)
}

func (a *HTTPJobAPI) OngoingJobs(ctx context.Context, conversationID string) ([]*model.Job, error) {
	var ps []jobPayload
	if err := a.do(ctx, http.MethodGet, "/conversations/"+conversationID+"/ongoing-jobs", nil, &ps); err != nil {
		return nil, err
	}
	jobs := make([]*model.Job, 0, len(ps))
	for i := range ps {
		jobs = append(jobs, ps[i].toModel())
	}
	return jobs, nil
}

func (a *HTTPJobAPI) JobHistory(ctx context.Context, limit int) ([]*model.Job, error) {
	var ps []jobPayload
	if err := a.do(ctx, http.MethodGet, fmt.Sprintf("/jobs/history?limit=%d", limit), nil, &ps); err != nil {
		return nil, err
	}
	jobs := make([]*model.Job, 0, len(ps))
	for i := range ps {
		jobs = append(jobs, ps[i].toModel())
	}
	return jobs, nil
}

func (a *HTTPJobAPI) do(ctx context.Context, method, path string, body *bytes.Reader, out any) error {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, a.base+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, a.base+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: http %d on %s", domain.ErrTransport, resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
