// internal/server/server.go
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agentcoord/internal/orchestrator"
)

// Server exposes the coordination operations over HTTP and WebSocket
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub
	coord      *orchestrator.Coordinator

	stopFeed context.CancelFunc
}

// NewServer creates the HTTP server over a coordinator
func NewServer(coord *orchestrator.Coordinator) *Server {
	s := &Server{
		hub:   NewHub(),
		coord: coord,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(SecurityHeadersMiddleware, RequestSizeMiddleware, LoggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()

	// Projects
	api.HandleFunc("/projects", s.handleCreateProject).Methods("POST")
	api.HandleFunc("/projects", s.handleListProjects).Methods("GET")
	api.HandleFunc("/projects/{id}", s.handleGetProject).Methods("GET")
	api.HandleFunc("/projects/{id}/archive", s.handleArchiveProject).Methods("POST")
	api.HandleFunc("/projects/{id}/status", s.handleProjectStatus).Methods("GET")

	// Agents
	api.HandleFunc("/agents", s.handleRegisterAgent).Methods("POST")
	api.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/agents/{id}/reporting", s.handleSetReporting).Methods("PUT")
	api.HandleFunc("/agents/{id}/chain", s.handleAgentChain).Methods("GET")

	// Tasks
	api.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/assign", s.handleAssignTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/auto-assign", s.handleAutoAssignTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/progress", s.handleUpdateProgress).Methods("PUT")
	api.HandleFunc("/tasks/{id}/hierarchy", s.handleTaskHierarchy).Methods("GET")
	api.HandleFunc("/tasks/{id}/dependencies", s.handleLinkDependency).Methods("POST")
	api.HandleFunc("/tasks/{id}/assignments", s.handleAssignmentHistory).Methods("GET")

	// Locks
	api.HandleFunc("/locks", s.handleAcquireLock).Methods("POST")
	api.HandleFunc("/locks", s.handleListLocks).Methods("GET")
	api.HandleFunc("/locks/check", s.handleCheckAccess).Methods("POST")
	api.HandleFunc("/locks/conflicts", s.handleDetectConflicts).Methods("GET")
	api.HandleFunc("/locks/force-release", s.handleForceRelease).Methods("POST")
	api.HandleFunc("/locks/{id}/release", s.handleReleaseLock).Methods("POST")

	// Messages and teams
	api.HandleFunc("/messages", s.handleSendMessage).Methods("POST")
	api.HandleFunc("/messages", s.handleListMessages).Methods("GET")
	api.HandleFunc("/messages/{id}/read", s.handleMarkRead).Methods("POST")
	api.HandleFunc("/messages/{id}/respond", s.handleRespondCollaboration).Methods("POST")
	api.HandleFunc("/teams", s.handleCreateTeam).Methods("POST")
	api.HandleFunc("/teams/{id}", s.handleGetTeam).Methods("GET")

	// Approvals
	api.HandleFunc("/approvals", s.handleRequestApproval).Methods("POST")
	api.HandleFunc("/approvals", s.handlePendingApprovals).Methods("GET")
	api.HandleFunc("/approvals/{id}", s.handleGetApproval).Methods("GET")
	api.HandleFunc("/approvals/{id}/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/approvals/{id}/reject", s.handleReject).Methods("POST")
	api.HandleFunc("/approvals/{id}/escalate", s.handleEscalate).Methods("POST")

	// Resource states
	api.HandleFunc("/resource/states", s.handleResourceStates).Methods("GET")
	api.HandleFunc("/resource/states/{id}", s.handleResourceState).Methods("GET")
	api.HandleFunc("/resource/states/{id}/response", s.handleComputeResponse).Methods("POST")
	api.HandleFunc("/resource/states/{id}/preempt", s.handlePreempt).Methods("POST")

	// Context assembly
	api.HandleFunc("/context/content", s.handleAddContent).Methods("POST")
	api.HandleFunc("/context/assemble", s.handleAssembleContext).Methods("POST")
	api.HandleFunc("/context/summaries", s.handleListSummaries).Methods("GET")

	// Event log
	api.HandleFunc("/events", s.handleQueryEvents).Methods("GET")
	api.HandleFunc("/events/search", s.handleSearchEvents).Methods("GET")

	// Monitoring
	api.HandleFunc("/metrics", s.handleMetricsSeries).Methods("GET")
	api.HandleFunc("/health", s.handleHealthCheck).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start runs the hub, the event feed, and the HTTP listener
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go s.hub.Run()

	feedCtx, cancel := context.WithCancel(context.Background())
	s.stopFeed = cancel
	go s.runEventFeed(feedCtx)

	return s.httpServer.ListenAndServe()
}

// runEventFeed pushes interaction records to WebSocket clients
func (s *Server) runEventFeed(ctx context.Context) {
	ch := s.coord.EventBus.Subscribe("", nil)
	defer s.coord.EventBus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			s.hub.BroadcastRecord(&rec)
		}
	}
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopFeed != nil {
		s.stopFeed()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the mux router, for tests
func (s *Server) Router() http.Handler {
	return s.router
}
