package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/cleardeal/internal/escrow"
	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

// JobsHandler serves the job and application lifecycle.
type JobsHandler struct {
	jobs *escrow.JobEngine
	apps *escrow.ApplicationEngine
}

func NewJobsHandler(jobs *escrow.JobEngine, apps *escrow.ApplicationEngine) *JobsHandler {
	return &JobsHandler{jobs: jobs, apps: apps}
}

type createJobRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Bounty      models.Amount `json:"bounty"`
}

type jobResponse struct {
	models.Job
	ApplicationFee models.Amount `json:"application_fee"`
}

type statusResponse struct {
	JobID       int64               `json:"job_id"`
	Status      escrow.Status       `json:"status"`
	Message     string              `json:"message"`
	Application *models.Application `json:"application,omitempty"`
}

func newJobResponse(j *models.Job) jobResponse {
	return jobResponse{Job: *j, ApplicationFee: escrow.Fee(j.Bounty)}
}

// requireRole answers 403 and returns false when the caller lacks role.
func requireRole(w http.ResponseWriter, r *http.Request, role models.Role) (Caller, bool) {
	c, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return Caller{}, false
	}
	if role != "" && c.Role != role {
		writeError(w, http.StatusForbidden, "only a "+string(role)+" can do this")
		return Caller{}, false
	}
	return c, true
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, models.RoleClient)
	if !ok {
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), c.Address, req.Title, req.Description, req.Bounty)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newJobResponse(job))
}

func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.JobFilter{Client: q.Get("client")}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid open parameter")
			return
		}
		f.OpenOnly = open
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+name+" parameter")
				return
			}
			*dst = n
		}
	}

	jobs, err := h.jobs.ListJobs(r.Context(), f)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, newJobResponse(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// Apply charges the caller's application fee. The fee is derived from the
// stored bounty; the request has no body.
func (h *JobsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, models.RoleFreelancer)
	if !ok {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	app, err := h.apps.Apply(r.Context(), id, c.Address)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *JobsHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, "")
	if !ok {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	apps, err := h.apps.ApplicationsForJob(r.Context(), c.Address, id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *JobsHandler) Select(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, models.RoleClient)
	if !ok {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	app, err := h.apps.Select(r.Context(), c.Address, id, mux.Vars(r)["freelancer"])
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *JobsHandler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, models.RoleFreelancer)
	if !ok {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var sub models.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	app, err := h.apps.SubmitWork(r.Context(), c.Address, id, sub)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *JobsHandler) ApproveWork(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, models.RoleClient)
	if !ok {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	app, err := h.apps.ApproveWork(r.Context(), c.Address, id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *JobsHandler) RejectWork(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, models.RoleClient)
	if !ok {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	app, err := h.apps.RejectWork(r.Context(), c.Address, id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, "")
	if !ok {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	st, app, err := h.apps.StatusFor(r.Context(), c.Address, id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{JobID: id, Status: st, Message: escrow.Message(st), Application: app})
}

func (h *JobsHandler) MyApplications(w http.ResponseWriter, r *http.Request) {
	c, ok := requireRole(w, r, "")
	if !ok {
		return
	}
	apps, err := h.apps.MyApplications(r.Context(), c.Address)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}
