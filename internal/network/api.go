package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/engine"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/optimization"
)

// Server is the HTTP face of the simulation: a JSON API for commands and
// the /ws push channel.
type Server struct {
	engine   *engine.Engine
	hub      *Hub
	tuning   *optimization.Config
	logger   *logger.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer builds the router. allowedOrigins empty accepts any origin.
func NewServer(eng *engine.Engine, hub *Hub, tuning *optimization.Config, log *logger.Logger, allowedOrigins []string) *Server {
	if tuning == nil {
		tuning = optimization.DefaultConfig()
	}
	s := &Server{engine: eng, hub: hub, tuning: tuning, logger: log, mux: http.NewServeMux()}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	s.routes()
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if strings.EqualFold(origin, a) {
				return true
			}
		}
		return false
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /ws", s.serveWs)

	s.mux.HandleFunc("POST /api/sessions", s.createSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.status)
	s.mux.HandleFunc("PUT /api/sessions/{id}/speed", s.setSpeed)

	s.mux.HandleFunc("GET /api/sessions/{id}/bounces", s.bounceChain)
	s.mux.HandleFunc("POST /api/sessions/{id}/bounces", s.addBounce)
	s.mux.HandleFunc("DELETE /api/sessions/{id}/bounces/{position}", s.removeBounce)
	s.mux.HandleFunc("POST /api/sessions/{id}/connect", s.connect)
	s.mux.HandleFunc("POST /api/sessions/{id}/disconnect", s.disconnect)
	s.mux.HandleFunc("GET /api/sessions/{id}/screen", s.screen)
	s.mux.HandleFunc("POST /api/sessions/{id}/screen", s.screenAction)

	s.mux.HandleFunc("GET /api/sessions/{id}/tasks", s.listTasks)
	s.mux.HandleFunc("POST /api/sessions/{id}/tasks", s.startTask)
	s.mux.HandleFunc("DELETE /api/sessions/{id}/tasks/{taskID}", s.stopTask)

	s.mux.HandleFunc("GET /api/sessions/{id}/missions", s.listMissions)
	s.mux.HandleFunc("POST /api/sessions/{id}/missions/{missionID}/accept", s.acceptMission)
	s.mux.HandleFunc("GET /api/sessions/{id}/messages", s.listMessages)

	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.pendingEvents)
	s.mux.HandleFunc("POST /api/sessions/{id}/events", s.scheduleEvent)

	s.mux.HandleFunc("POST /api/sessions/{id}/software", s.buySoftware)
	s.mux.HandleFunc("POST /api/sessions/{id}/hardware", s.buyHardware)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountRef string `json:"account_ref"`
		Handle     string `json:"handle"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	session, player, err := s.engine.CreateSession(r.Context(), req.AccountRef, req.Handle)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session, "player": player})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, status, err)
}

func (s *Server) setSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed *int `json:"speed"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Speed == nil {
		writeError(w, s.logger, domain.NewValidationError("speed is required"))
		return
	}
	err := s.engine.SetSpeed(r.Context(), r.PathValue("id"), *req.Speed)
	s.respond(w, http.StatusOK, map[string]int{"speed": *req.Speed}, err)
}

func (s *Server) bounceChain(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.engine.BounceChain(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, nodes, err)
}

func (s *Server) addBounce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	node, err := s.engine.AddBounce(r.Context(), r.PathValue("id"), req.Address)
	s.respond(w, http.StatusCreated, node, err)
}

func (s *Server) removeBounce(w http.ResponseWriter, r *http.Request) {
	position, ok := s.intPath(w, r, "position")
	if !ok {
		return
	}
	err := s.engine.RemoveBounce(r.Context(), r.PathValue("id"), int(position))
	s.respond(w, http.StatusNoContent, nil, err)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	screen, err := s.engine.Connect(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, screen, err)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Disconnect(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusNoContent, nil, err)
}

func (s *Server) screen(w http.ResponseWriter, r *http.Request) {
	screen, err := s.engine.Screen(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, screen, err)
}

func (s *Server) screenAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		engine.ScreenInput
	}
	if !s.decode(w, r, &req) {
		return
	}
	screen, err := s.engine.ScreenAction(r.Context(), r.PathValue("id"), req.Action, req.ScreenInput)
	s.respond(w, http.StatusOK, screen, err)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.engine.ListTasks(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, tasks, err)
}

func (s *Server) startTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool    string `json:"tool"`
		Version int    `json:"version"`
		Target  string `json:"target"`
		domain.TaskParams
	}
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.engine.StartTask(r.Context(), r.PathValue("id"), req.Tool, req.Version, req.Target, req.TaskParams)
	s.respond(w, http.StatusCreated, task, err)
}

func (s *Server) stopTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.intPath(w, r, "taskID")
	if !ok {
		return
	}
	err := s.engine.StopTask(r.Context(), r.PathValue("id"), taskID)
	s.respond(w, http.StatusNoContent, nil, err)
}

func (s *Server) listMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := s.engine.ListMissions(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, missions, err)
}

func (s *Server) acceptMission(w http.ResponseWriter, r *http.Request) {
	missionID, ok := s.intPath(w, r, "missionID")
	if !ok {
		return
	}
	mission, err := s.engine.AcceptMission(r.Context(), r.PathValue("id"), missionID)
	s.respond(w, http.StatusOK, mission, err)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.engine.ListMessages(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, msgs, err)
}

func (s *Server) pendingEvents(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.PendingEvents(r.Context(), r.PathValue("id"))
	s.respond(w, http.StatusOK, pending, err)
}

func (s *Server) scheduleEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind        string              `json:"kind"`
		TriggerTick int64               `json:"trigger_tick"`
		Payload     domain.EventPayload `json:"payload"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	ev, err := s.engine.ScheduleEvent(r.Context(), r.PathValue("id"), req.Kind, req.TriggerTick, req.Payload)
	s.respond(w, http.StatusCreated, ev, err)
}

func (s *Server) buySoftware(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool    string `json:"tool"`
		Version int    `json:"version"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	file, err := s.engine.BuySoftware(r.Context(), r.PathValue("id"), req.Tool, req.Version)
	s.respond(w, http.StatusCreated, file, err)
}

func (s *Server) buyHardware(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CPUSpeed int `json:"cpu_speed"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	gw, err := s.engine.BuyHardware(r.Context(), r.PathValue("id"), req.CPUSpeed)
	s.respond(w, http.StatusOK, gw, err)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, s.logger, domain.NewValidationError("invalid request body"))
		return false
	}
	return true
}

func (s *Server) intPath(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	n, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, s.logger, domain.NewValidationError(name+" must be an integer"))
		return 0, false
	}
	return n, true
}

func (s *Server) respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to 400 and 404; anything else is a 500
// whose detail stays in the log.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	var validation *domain.ValidationError
	var notFound *domain.NotFoundError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		log.Errorf("Request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
