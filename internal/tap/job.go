package tap

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Phase is a UWS job execution phase.
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseQueued    Phase = "QUEUED"
	PhaseExecuting Phase = "EXECUTING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseError     Phase = "ERROR"
	PhaseAborted   Phase = "ABORTED"
	PhaseUnknown   Phase = "UNKNOWN"
	PhaseHeld      Phase = "HELD"
	PhaseSuspended Phase = "SUSPENDED"
	PhaseArchived  Phase = "ARCHIVED"
)

// Terminal reports whether no further phase change is expected.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseError, PhaseAborted, PhaseArchived:
		return true
	}
	return false
}

// JobError is returned by Wait when a job ends in any phase but COMPLETED.
type JobError struct {
	URL     string
	Phase   Phase
	Message string
}

func (e *JobError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("tap job %s ended %s: %s", e.URL, e.Phase, e.Message)
	}
	return fmt.Sprintf("tap job %s ended %s", e.URL, e.Phase)
}

// Job is a handle on an asynchronous query running on the service.
type Job struct {
	URL string
	c   *Client
}

// Submit creates an asynchronous job for adql and starts it (PHASE=RUN).
func (c *Client) Submit(ctx context.Context, adql string) (*Job, error) {
	form := queryForm(adql)
	form.Set("PHASE", "RUN")

	resp, err := c.postForm(ctx, c.base+"/async", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusSeeOther, http.StatusFound, http.StatusCreated:
	default:
		return nil, httpError(resp)
	}

	loc, err := resp.Location()
	if err != nil {
		return nil, fmt.Errorf("job creation returned %s without a job location: %w", resp.Status, err)
	}

	c.log.Info("job submitted", "url", loc.String())
	return &Job{URL: loc.String(), c: c}, nil
}

// Phase fetches the job's current execution phase.
func (j *Job) Phase(ctx context.Context) (Phase, error) {
	resp, err := j.c.get(ctx, j.URL+"/phase")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", httpError(resp)
	}
	text, err := readText(resp)
	if err != nil {
		return "", err
	}
	return Phase(text), nil
}

// Wait polls the job phase until it is terminal or ctx is done. The interval
// starts at the client's poll interval and doubles up to its maximum.
func (j *Job) Wait(ctx context.Context) error {
	interval := j.c.pollInterval
	var last Phase

	for {
		phase, err := j.Phase(ctx)
		if err != nil {
			return err
		}
		if phase != last {
			j.c.log.Info("job phase", "phase", string(phase))
			last = phase
		}

		switch {
		case phase == PhaseCompleted:
			return nil
		case phase.Terminal():
			return &JobError{URL: j.URL, Phase: phase, Message: j.errorSummary(ctx)}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval *= 2
		if interval > j.c.maxPollInterval {
			interval = j.c.maxPollInterval
		}
	}
}

// Results fetches and decodes the job's result table.
func (j *Job) Results(ctx context.Context) (*Table, error) {
	resp, err := j.c.get(ctx, j.URL+"/results/result")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	return decodeTable(resp.Body)
}

// errorSummary fetches the job's error document. Failures are ignored; the
// phase alone is enough to report the job as failed.
func (j *Job) errorSummary(ctx context.Context) string {
	resp, err := j.c.get(ctx, j.URL+"/error")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	text, _ := readText(resp)
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
