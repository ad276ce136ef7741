// internal/server/handlers.go
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/agentcoord/internal/agents"
	"github.com/agentcoord/internal/approvals"
	"github.com/agentcoord/internal/assign"
	"github.com/agentcoord/internal/events"
	"github.com/agentcoord/internal/locks"
	"github.com/agentcoord/internal/messaging"
	"github.com/agentcoord/internal/rag"
	"github.com/agentcoord/internal/tasks"
	"github.com/agentcoord/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades to WebSocket and registers the client
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, WebSocketBufferSize),
	}
	s.hub.Register(client)

	go client.readPump()
	go client.writePump()
}

// Projects

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string            `json:"id"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Metadata    map[string]string `json:"metadata"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.coord.Projects.Create(req.ID, req.Name, req.Description, req.Metadata)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	s.respondJSON(w, http.StatusOK, s.coord.Projects.List(includeArchived))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.coord.Projects.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.coord.Projects.Archive(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.Status(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// Agents

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var profile agents.Profile
	if !s.decode(w, r, &profile) {
		return
	}
	if profile.ID == "" {
		p := agents.NewProfile(profile.ProjectID, profile.Name, profile.Role)
		p.Skills = profile.Skills
		p.HierarchyLevel = profile.HierarchyLevel
		p.Personality = profile.Personality
		p.Specializations = profile.Specializations
		if profile.SkillLevels != nil {
			p.SkillLevels = profile.SkillLevels
		}
		if profile.MaxWorkload > 0 {
			p.MaxWorkload = profile.MaxWorkload
		}
		profile = *p
	}
	if err := s.coord.Agents.Register(&profile); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, &profile)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all := q.Get("all_projects") == "true"
	list, err := s.coord.Agents.List(q.Get("project_id"), all)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.coord.Agents.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleSetReporting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReportsTo string `json:"reports_to"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.coord.Agents.SetReporting(mux.Vars(r)["id"], req.ReportsTo); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAgentChain(w http.ResponseWriter, r *http.Request) {
	chain, err := s.coord.Agents.Chain(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"chain": chain})
}

// Tasks

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var task tasks.Task
	if !s.decode(w, r, &task) {
		return
	}
	if task.ID == "" {
		t := tasks.NewTask(task.ProjectID, task.Title, task.CreatedBy, task.Type, task.Priority)
		t.Description = task.Description
		t.ParentTaskID = task.ParentTaskID
		t.Dependencies = task.Dependencies
		t.EstimatedHours = task.EstimatedHours
		t.DueDate = task.DueDate
		t.RequiredSkills = task.RequiredSkills
		t.Metadata = task.Metadata
		task = *t
	}
	if err := s.coord.CreateTask(&task); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, &task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := tasks.Scope{
		ProjectID:   q.Get("project_id"),
		AllProjects: q.Get("all_projects") == "true",
		AssignedTo:  q.Get("assigned_to"),
		Status:      tasks.TaskStatus(q.Get("status")),
		Type:        tasks.TaskType(q.Get("type")),
	}
	list, err := s.coord.Tasks.List(scope)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.coord.Tasks.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID    string `json:"agent_id"`
		AssignedBy string `json:"assigned_by"`
		Reason     string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.coord.AssignTask(mux.Vars(r)["id"], req.AgentID, req.AssignedBy, req.Reason)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleAutoAssignTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Algorithm  string `json:"algorithm"`
		AssignedBy string `json:"assigned_by"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.coord.AutoAssignTask(mux.Vars(r)["id"], assign.Algorithm(req.Algorithm), req.AssignedBy)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Progress    int      `json:"progress"`
		Status      string   `json:"status"`
		ActualHours *float64 `json:"actual_hours"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	var status *tasks.TaskStatus
	if req.Status != "" {
		st := tasks.TaskStatus(req.Status)
		status = &st
	}
	task, err := s.coord.UpdateTaskProgress(mux.Vars(r)["id"], req.Progress, status, req.ActualHours)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskHierarchy(w http.ResponseWriter, r *http.Request) {
	h, err := s.coord.Tasks.GetHierarchy(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, h)
}

func (s *Server) handleLinkDependency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DependsOn string `json:"depends_on"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.coord.Tasks.LinkDependency(mux.Vars(r)["id"], req.DependsOn); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAssignmentHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.coord.Tasks.AssignmentHistory(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, history)
}

// Locks

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID      string `json:"project_id"`
		AgentID        string `json:"agent_id"`
		Path           string `json:"path"`
		Kind           string `json:"kind"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	lock, err := s.coord.Locks.Acquire(req.ProjectID, req.AgentID, req.Path,
		locks.LockKind(req.Kind), time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, lock)
}

func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("agent_id") != "":
		s.respondJSON(w, http.StatusOK, s.coord.Locks.AgentLocks(q.Get("agent_id")))
	case q.Get("path") != "":
		list, err := s.coord.Locks.PathLocks(q.Get("project_id"), q.Get("path"))
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, list)
	default:
		s.respondJSON(w, http.StatusOK, s.coord.Locks.ActiveLocks(q.Get("project_id")))
	}
}

func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	released, err := s.coord.Locks.Release(mux.Vars(r)["id"], req.AgentID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
		AgentID   string `json:"agent_id"`
		Path      string `json:"path"`
		Kind      string `json:"kind"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	check, err := s.coord.Locks.CheckAccess(req.ProjectID, req.AgentID, req.Path, locks.LockKind(req.Kind))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, check)
}

func (s *Server) handleDetectConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conflicts, err := s.coord.Locks.DetectConflicts(q.Get("project_id"), q.Get("path"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, conflicts)
}

func (s *Server) handleForceRelease(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	released := s.coord.Locks.ForceRelease(req.AgentID)
	s.respondJSON(w, http.StatusOK, map[string]int{"released": released})
}

// Messages

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string            `json:"type"`
		From     string            `json:"from"`
		To       string            `json:"to"`
		TeamID   string            `json:"team_id"`
		Subject  string            `json:"subject"`
		Body     string            `json:"body"`
		Priority string            `json:"priority"`
		Roles    []string          `json:"target_roles"`
		Metadata map[string]string `json:"metadata"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	priority := messaging.Priority(req.Priority)
	switch messaging.MessageType(req.Type) {
	case messaging.TypeTeam:
		id, err := s.coord.Messages.SendTeam(req.From, req.TeamID, req.Subject, req.Body, priority, req.Metadata)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, map[string]string{"message_id": id})
	case messaging.TypeBroadcast:
		roles := make([]types.Role, 0, len(req.Roles))
		for _, role := range req.Roles {
			roles = append(roles, types.Role(role))
		}
		id, err := s.coord.Messages.Broadcast(req.From, req.Subject, req.Body, roles, priority, req.Metadata)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, map[string]string{"message_id": id})
	case messaging.TypeCollabRequest:
		msg, err := s.coord.Messages.RequestCollaboration(req.From, req.To, req.Subject, req.Body, req.Metadata)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, msg)
	default:
		msg, err := s.coord.Messages.SendDirect(req.From, req.To, req.Subject, req.Body, priority, req.Metadata)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, msg)
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	unread := q.Get("unread") == "true"
	s.respondJSON(w, http.StatusOK, s.coord.Messages.ListMessages(q.Get("agent_id"), unread, limit))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	updated, err := s.coord.Messages.MarkRead(req.AgentID, mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) handleRespondCollaboration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID  string `json:"agent_id"`
		Response string `json:"response"`
		Note     string `json:"note"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.coord.Messages.RespondToCollaboration(req.AgentID, mux.Vars(r)["id"],
		messaging.CollabResponse(req.Response), req.Note)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msg)
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string   `json:"project_id"`
		Name      string   `json:"name"`
		Members   []string `json:"members"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	team, err := s.coord.Messages.CreateTeam(req.ProjectID, req.Name, req.Members)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, team)
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := s.coord.Messages.Team(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, team)
}

// Approvals

func (s *Server) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID     string  `json:"project_id"`
		Requester     string  `json:"requester"`
		Decision      string  `json:"decision"`
		Title         string  `json:"title"`
		Description   string  `json:"description"`
		Justification string  `json:"justification"`
		Amount        float64 `json:"amount"`
		Priority      string  `json:"priority"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	request, err := s.coord.Approvals.Request(req.ProjectID, req.Requester,
		approvals.DecisionType(req.Decision), req.Title, req.Description,
		req.Justification, req.Amount, req.Priority)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, request)
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.coord.Approvals.PendingFor(r.URL.Query().Get("approver")))
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	request, err := s.coord.Approvals.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, request)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, s.coord.Approvals.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.decideApproval(w, r, s.coord.Approvals.Reject)
}

func (s *Server) decideApproval(w http.ResponseWriter, r *http.Request,
	decide func(approver, requestID, reasoning string) (*approvals.Request, error)) {
	var req struct {
		Approver  string `json:"approver"`
		Reasoning string `json:"reasoning"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	request, err := decide(req.Approver, mux.Vars(r)["id"], req.Reasoning)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, request)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	request, err := s.coord.Approvals.Escalate(mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, request)
}

// Resource states

func (s *Server) handleResourceStates(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.coord.Scheduler.States())
}

func (s *Server) handleResourceState(w http.ResponseWriter, r *http.Request) {
	state := s.coord.Scheduler.Snapshot(mux.Vars(r)["id"])
	if state == nil {
		s.respondError(w, types.NotFoundf("no state for agent %s", mux.Vars(r)["id"]))
		return
	}
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleComputeResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskType      string  `json:"task_type"`
		Complexity    float64 `json:"complexity"`
		Collaborative bool    `json:"collaborative"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.coord.Scheduler.ComputeResponse(mux.Vars(r)["id"], req.TaskType, req.Complexity, req.Collaborative)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreempt(w http.ResponseWriter, r *http.Request) {
	cost, err := s.coord.Scheduler.Preempt(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]float64{"interruption_cost_seconds": cost.Seconds()})
}

// Context assembly

func (s *Server) handleAddContent(w http.ResponseWriter, r *http.Request) {
	var chunk rag.Chunk
	if !s.decode(w, r, &chunk) {
		return
	}
	if err := s.coord.AddContent(&chunk); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, &chunk)
}

func (s *Server) handleAssembleContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
		AgentID   string `json:"agent_id"`
		Text      string `json:"text"`
		Budget    int    `json:"budget"`
		Strategy  string `json:"strategy"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	selection, err := s.coord.AssembleContext(rag.Query{
		ProjectID: req.ProjectID,
		AgentID:   req.AgentID,
		Text:      req.Text,
		Budget:    req.Budget,
		Strategy:  rag.Strategy(req.Strategy),
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, selection)
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	summaries, err := s.coord.Chunks.Summaries(q.Get("project_id"), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summaries)
}

// Event log

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := events.Filter{
		ProjectID: q.Get("project_id"),
		AgentID:   q.Get("agent_id"),
		Kind:      events.Kind(q.Get("kind")),
		Level:     q.Get("level"),
		Limit:     limit,
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	records, err := s.coord.Events.Query(filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	records, err := s.coord.Events.Search(q.Get("project_id"), q.Get("text"), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, records)
}

// Monitoring

func (s *Server) handleMetricsSeries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.respondJSON(w, http.StatusOK, s.coord.Metrics.Series(limit))
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": s.hub.ClientCount(),
		"time":       time.Now().UTC(),
	})
}

// Helpers

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, types.InvalidArgumentf("invalid request body"))
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError maps the error taxonomy to HTTP status codes
func (s *Server) respondError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(types.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
