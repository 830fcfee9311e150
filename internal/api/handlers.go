package api

import (
	"net/http"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/avelasko/taskpilot/internal/task"
	"github.com/gin-gonic/gin"
)

type createTaskRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Priority    string                 `json:"priority"`
	DueDate     *time.Time             `json:"due_date"`
	RemindAt    *time.Time             `json:"remind_at"`
	Recurrence  *models.RecurrenceRule `json:"recurrence_rule"`
	TagIDs      []string               `json:"tag_ids"`
}

type updateTaskRequest struct {
	Title           *string                `json:"title"`
	Description     *string                `json:"description"`
	Priority        *string                `json:"priority"`
	DueDate         *time.Time             `json:"due_date"`
	RemindAt        *time.Time             `json:"remind_at"`
	Recurrence      *models.RecurrenceRule `json:"recurrence_rule"`
	ClearDueDate    bool                   `json:"clear_due_date"`
	ClearRemindAt   bool                   `json:"clear_remind_at"`
	ClearRecurrence bool                   `json:"clear_recurrence"`
}

type createTagRequest struct {
	Name string `json:"name"`
}

type agentMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

func (s *Server) userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	created, err := s.tasks.Create(c.Request.Context(), s.userID(c), taskCreateInput(req))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetTask(c *gin.Context) {
	ctx := c.Request.Context()
	userID := s.userID(c)

	t, err := s.tasks.Get(ctx, userID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	tags, err := s.tasks.TaskTags(ctx, userID, t.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t, "tags": tags})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updated, err := s.tasks.Update(c.Request.Context(), s.userID(c), c.Param("id"), taskUpdateInput(req))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleToggleTask(c *gin.Context) {
	result, err := s.tasks.ToggleComplete(c.Request.Context(), s.userID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"task": result.Task}
	if result.Spawned != nil {
		resp["spawned"] = result.Spawned
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.tasks.Delete(c.Request.Context(), s.userID(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListTasks(c *gin.Context) {
	filter, err := parseTaskFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tasks, err := s.tasks.List(c.Request.Context(), s.userID(c), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleCreateTag(c *gin.Context) {
	var req createTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tag, err := s.tasks.CreateTag(c.Request.Context(), s.userID(c), req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (s *Server) handleListTags(c *gin.Context) {
	tags, err := s.tasks.ListTags(c.Request.Context(), s.userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (s *Server) handleDeleteTag(c *gin.Context) {
	if err := s.tasks.DeleteTag(c.Request.Context(), s.userID(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAttachTag(c *gin.Context) {
	err := s.tasks.AttachTag(c.Request.Context(), s.userID(c), c.Param("id"), c.Param("tagID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDetachTag(c *gin.Context) {
	err := s.tasks.DetachTag(c.Request.Context(), s.userID(c), c.Param("id"), c.Param("tagID"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAgentMessage(c *gin.Context) {
	var req agentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = "default"
	}

	reply := s.agent.HandleTurn(c.Request.Context(), s.userID(c), req.ConversationID, req.Message)
	c.JSON(http.StatusOK, gin.H{"reply": reply, "conversation_id": req.ConversationID})
}

func taskCreateInput(req createTaskRequest) task.CreateInput {
	return task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		RemindAt:    req.RemindAt,
		Recurrence:  req.Recurrence,
		TagIDs:      req.TagIDs,
	}
}

func taskUpdateInput(req updateTaskRequest) task.UpdateInput {
	return task.UpdateInput{
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		DueDate:         req.DueDate,
		RemindAt:        req.RemindAt,
		Recurrence:      req.Recurrence,
		ClearDueDate:    req.ClearDueDate,
		ClearRemindAt:   req.ClearRemindAt,
		ClearRecurrence: req.ClearRecurrence,
	}
}

func parseTaskFilter(c *gin.Context) (storage.TaskFilter, error) {
	filter := storage.TaskFilter{TagID: c.Query("tag_id")}

	if p := c.Query("priority"); p != "" {
		priority := models.Priority(p)
		if !priority.Valid() {
			return filter, &storage.ValidationError{Field: "priority", Reason: "must be one of low, medium, high, urgent"}
		}
		filter.Priority = &priority
	}
	if v := c.Query("completed"); v != "" {
		completed := v == "true"
		filter.Completed = &completed
	}
	if v := c.Query("due_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, &storage.ValidationError{Field: "due_after", Reason: "must be RFC 3339"}
		}
		filter.DueAfter = &t
	}
	if v := c.Query("due_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, &storage.ValidationError{Field: "due_before", Reason: "must be RFC 3339"}
		}
		filter.DueBefore = &t
	}
	return filter, nil
}
