package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api/presenter"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/tasks"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, s.taskManager.ListStatus(), http.StatusOK)
}

type TriggerTaskResponse struct {
	Status string `json:"status"`
	Task   string `json:"task"`
}

// handleTriggerTask starts a task in the background. A task that is still running is not started twice.
func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.taskManager.Trigger(name); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Str("task", name).Msg("task trigger refused")
		presenter.Error(w, r, err.Error(), taskErrorStatus(err))
		return
	}
	log.Ctx(r.Context()).Info().Str("task", name).Msg("task triggered")
	presenter.JSON(w, r, TriggerTaskResponse{
		Status: "triggered",
		Task:   name,
	}, http.StatusAccepted)
}

func (s *Server) handleLogsForTask(w http.ResponseWriter, r *http.Request) {
	logs, err := s.taskManager.GetLogs(r.PathValue("name"))
	if err != nil {
		presenter.Error(w, r, err.Error(), taskErrorStatus(err))
		return
	}
	presenter.JSON(w, r, logs, http.StatusOK)
}

func taskErrorStatus(err error) int {
	switch {
	case errors.As(err, &tasks.TaskNotFoundError{}):
		return http.StatusNotFound
	case errors.As(err, &tasks.TaskRunningError{}):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
