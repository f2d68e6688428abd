// Package legacy reads and writes the browser storage snapshots of the first
// ClearDeal release, where jobs and applications lived in localStorage under
// the clearDealJobs and clearDealApplications keys.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/garnizeh/cleardeal/internal/identity"
	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

const (
	JobsKey         = "clearDealJobs"
	ApplicationsKey = "clearDealApplications"
)

var ErrBadSnapshot = errors.New("bad legacy snapshot")

type legacyJob struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	Bounty             string `json:"bounty"`
	Client             string `json:"client"`
	SelectedFreelancer string `json:"selectedFreelancer,omitempty"`
	IsCompleted        bool   `json:"isCompleted"`
	GithubLink         string `json:"githubLink,omitempty"`
	WorkDescription    string `json:"workDescription,omitempty"`
	SubmissionType     string `json:"submissionType,omitempty"`
	SubmissionContent  string `json:"submissionContent,omitempty"`
}

type legacySubmission struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	Description string `json:"description"`
	SubmittedAt int64  `json:"submittedAt"`
}

type legacyApplication struct {
	JobID          int64             `json:"jobId"`
	Freelancer     string            `json:"freelancer"`
	Status         string            `json:"status"`
	AppliedAt      int64             `json:"appliedAt"`
	HasPaidFee     *bool             `json:"hasPaidFee,omitempty"`
	WorkStatus     string            `json:"workStatus,omitempty"`
	SubmissionData *legacySubmission `json:"submissionData,omitempty"`
}

// Snapshot is a legacy store converted to the current model.
type Snapshot struct {
	Jobs         []models.Job
	Applications []models.Application
}

// Report counts what Parse had to repair.
type Report struct {
	Collapsed int // duplicate (job, freelancer) pairs dropped in favour of the latest
	Orphans   int // applications whose job is not in the snapshot
	FeeFilled int // applications with no hasPaidFee, read as paid
}

// Parse reads a snapshot object holding both keys. Each value may be the JSON
// array itself or the string localStorage kept it as.
func Parse(r io.Reader) (*Snapshot, Report, error) {
	var rep Report
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, rep, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	var ljobs []legacyJob
	if err := decodeKey(raw, JobsKey, &ljobs); err != nil {
		return nil, rep, err
	}
	var lapps []legacyApplication
	if err := decodeKey(raw, ApplicationsKey, &lapps); err != nil {
		return nil, rep, err
	}

	snap := &Snapshot{}
	known := make(map[int64]bool, len(ljobs))
	for _, lj := range ljobs {
		j, err := convertJob(lj)
		if err != nil {
			return nil, rep, err
		}
		if known[j.ID] {
			return nil, rep, fmt.Errorf("%w: job %d appears twice", ErrBadSnapshot, j.ID)
		}
		known[j.ID] = true
		snap.Jobs = append(snap.Jobs, j)
	}

	type key struct {
		jobID      int64
		freelancer string
	}
	latest := make(map[key]int)
	for _, la := range lapps {
		a, filled, err := convertApplication(la)
		if err != nil {
			return nil, rep, err
		}
		if !known[a.JobID] {
			rep.Orphans++
			continue
		}
		if filled {
			rep.FeeFilled++
		}

		k := key{a.JobID, strings.ToLower(a.Freelancer)}
		if i, ok := latest[k]; ok {
			rep.Collapsed++
			if a.AppliedAt >= snap.Applications[i].AppliedAt {
				snap.Applications[i] = a
			}
			continue
		}
		latest[k] = len(snap.Applications)
		snap.Applications = append(snap.Applications, a)
	}

	return snap, rep, nil
}

func decodeKey(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadSnapshot, key, err)
		}
		v = json.RawMessage(s)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadSnapshot, key, err)
	}
	return nil
}

func convertJob(lj legacyJob) (models.Job, error) {
	if lj.ID == 0 {
		return models.Job{}, fmt.Errorf("%w: job %q has no id", ErrBadSnapshot, lj.Title)
	}
	bounty, err := models.ParseAmount(lj.Bounty)
	if err != nil || bounty.Sign() <= 0 {
		return models.Job{}, fmt.Errorf("%w: job %d bounty %q", ErrBadSnapshot, lj.ID, lj.Bounty)
	}
	client, err := identity.NormalizeAddress(lj.Client)
	if err != nil {
		return models.Job{}, fmt.Errorf("%w: job %d client: %v", ErrBadSnapshot, lj.ID, err)
	}

	j := models.Job{
		ID:          lj.ID,
		Title:       lj.Title,
		Description: lj.Description,
		Bounty:      bounty,
		Client:      client,
		IsCompleted: lj.IsCompleted,
		Created:     lj.ID,
	}

	content := lj.SubmissionContent
	if content == "" {
		content = lj.GithubLink
	}
	if content != "" {
		typ := models.SubmissionType(lj.SubmissionType)
		if typ == "" {
			typ = models.SubmissionLink
		}
		j.Submission = &models.Submission{Type: typ, Content: content, Description: lj.WorkDescription}
	}
	return j, nil
}

func convertApplication(la legacyApplication) (models.Application, bool, error) {
	freelancer, err := identity.NormalizeAddress(la.Freelancer)
	if err != nil {
		return models.Application{}, false, fmt.Errorf("%w: application to job %d: %v", ErrBadSnapshot, la.JobID, err)
	}

	a := models.Application{
		JobID:      la.JobID,
		Freelancer: freelancer,
		Status:     models.ApplicationStatus(la.Status),
		WorkStatus: models.WorkStatus(la.WorkStatus),
		HasPaidFee: true,
		AppliedAt:  la.AppliedAt,
	}
	switch a.Status {
	case models.StatusPending, models.StatusSelected, models.StatusRejected:
	default:
		return models.Application{}, false, fmt.Errorf("%w: application to job %d has status %q", ErrBadSnapshot, la.JobID, la.Status)
	}
	if a.WorkStatus == "" {
		a.WorkStatus = models.WorkNotStarted
	}
	filled := la.HasPaidFee == nil
	if !filled {
		a.HasPaidFee = *la.HasPaidFee
	}
	if s := la.SubmissionData; s != nil {
		a.Submission = &models.SubmissionData{
			Submission:  models.Submission{Type: models.SubmissionType(s.Type), Content: s.Content, Description: s.Description},
			SubmittedAt: s.SubmittedAt,
		}
	}
	return a, filled, nil
}

// Import replaces the store's jobs and applications with snap in one
// transaction. Rows that survive keep their version history.
func Import(ctx context.Context, store repository.EntityStore, snap *Snapshot) error {
	return store.WithTx(ctx, func(tx repository.EntityStore) error {
		current, err := tx.LoadJobs(ctx)
		if err != nil {
			return err
		}
		existing := make(map[int64]bool, len(current))
		for _, j := range current {
			existing[j.ID] = true
		}
		incoming := make(map[int64]bool, len(snap.Jobs))
		for _, j := range snap.Jobs {
			incoming[j.ID] = true
		}

		// Stale applications go first so their jobs can be deleted.
		var surviving []models.Application
		for _, a := range snap.Applications {
			if existing[a.JobID] && incoming[a.JobID] {
				surviving = append(surviving, a)
			}
		}
		if err := tx.SaveApplications(ctx, surviving); err != nil {
			return fmt.Errorf("import applications: %w", err)
		}
		if err := tx.SaveJobs(ctx, snap.Jobs); err != nil {
			return fmt.Errorf("import jobs: %w", err)
		}
		if err := tx.SaveApplications(ctx, snap.Applications); err != nil {
			return fmt.Errorf("import applications: %w", err)
		}
		return nil
	})
}

// Export writes the store in the legacy snapshot layout.
func Export(ctx context.Context, store repository.EntityStore, w io.Writer) error {
	jobs, err := store.LoadJobs(ctx)
	if err != nil {
		return err
	}
	apps, err := store.LoadApplications(ctx)
	if err != nil {
		return err
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })

	selected := make(map[int64]string)
	for _, a := range apps {
		if a.Status == models.StatusSelected {
			selected[a.JobID] = a.Freelancer
		}
	}

	out := struct {
		Jobs         []legacyJob         `json:"clearDealJobs"`
		Applications []legacyApplication `json:"clearDealApplications"`
	}{
		Jobs:         make([]legacyJob, 0, len(jobs)),
		Applications: make([]legacyApplication, 0, len(apps)),
	}
	for _, j := range jobs {
		lj := legacyJob{
			ID:                 j.ID,
			Title:              j.Title,
			Description:        j.Description,
			Bounty:             j.Bounty.String(),
			Client:             j.Client,
			SelectedFreelancer: selected[j.ID],
			IsCompleted:        j.IsCompleted,
		}
		if s := j.Submission; s != nil {
			lj.SubmissionType = string(s.Type)
			lj.SubmissionContent = s.Content
			lj.WorkDescription = s.Description
			if s.Type == models.SubmissionLink {
				lj.GithubLink = s.Content
			}
		}
		out.Jobs = append(out.Jobs, lj)
	}
	for _, a := range apps {
		paid := a.HasPaidFee
		la := legacyApplication{
			JobID:      a.JobID,
			Freelancer: a.Freelancer,
			Status:     string(a.Status),
			AppliedAt:  a.AppliedAt,
			HasPaidFee: &paid,
			WorkStatus: string(a.WorkStatus),
		}
		if s := a.Submission; s != nil {
			la.SubmissionData = &legacySubmission{Type: string(s.Type), Content: s.Content, Description: s.Description, SubmittedAt: s.SubmittedAt}
		}
		out.Applications = append(out.Applications, la)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
