package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/cache"
	"taskhub/internal/config"
	"taskhub/internal/domain/task"
	"taskhub/internal/http/middlewares"
)

type TaskStore interface {
	Create(ctx context.Context, ownerID int64, req task.CreateTaskRequest) (task.Task, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]task.Task, error)
	GetByID(ctx context.Context, id, ownerID int64) (task.Task, error)
	Update(ctx context.Context, id, ownerID int64, req task.UpdateTaskRequest) (task.Task, error)
	Delete(ctx context.Context, id, ownerID int64) error
}

type TasksHandler struct {
	repo      TaskStore
	listCache *cache.Cache
}

func NewTasksHandler(repo TaskStore, listCache *cache.Cache) *TasksHandler {
	return &TasksHandler{
		repo:      repo,
		listCache: listCache,
	}
}

func userIDOrAbort(ctx *gin.Context) (int64, bool) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		// only reachable if the route was mounted without RequireAuth
		RespondUnAuthorized(ctx, "unauthorized", "Authentication required")
		return 0, false
	}

	return id, true
}

// taskIDOrAbort parses the :id segment. A non-numeric id cannot name any
// task, so it gets the same 404 as a missing one.
func taskIDOrAbort(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)

	if err != nil || id <= 0 {
		RespondNotFound(ctx, "Task not found or unauthorized")
		return 0, false
	}

	return id, true
}

func listCacheKey(ownerID int64) string {
	return "tasks:" + strconv.FormatInt(ownerID, 10)
}

func (h *TasksHandler) invalidateList(ownerID int64) {
	if h.listCache != nil {
		h.listCache.Delete(listCacheKey(ownerID))
	}
}

func (h *TasksHandler) ListTasks(ctx *gin.Context) {
	ownerID, ok := userIDOrAbort(ctx)

	if !ok {
		return
	}

	if h.listCache != nil {
		if v, ok := h.listCache.Get(listCacheKey(ownerID)); ok {
			if tasks, ok := v.([]task.Task); ok {
				RespondJSONWithETag(ctx, http.StatusOK, gin.H{
					"tasks": tasks,
					"count": len(tasks),
				})
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tasks, err := h.repo.ListByOwner(cctx, ownerID)

	if err != nil {
		RespondInternal(ctx, "Could not list tasks")
		return
	}

	if h.listCache != nil {
		h.listCache.Set(listCacheKey(ownerID), tasks)
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (h *TasksHandler) GetTaskById(ctx *gin.Context) {
	ownerID, ok := userIDOrAbort(ctx)

	if !ok {
		return
	}

	id, ok := taskIDOrAbort(ctx)

	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	t, err := h.repo.GetByID(cctx, id, ownerID)

	if err != nil {
		if err == task.ErrNotFound {
			RespondNotFound(ctx, "Task not found or unauthorized")
			return
		}

		RespondInternal(ctx, "Could not fetch task")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"task": t})
}

func (h *TasksHandler) CreateTask(ctx *gin.Context) {
	ownerID, ok := userIDOrAbort(ctx)

	if !ok {
		return
	}

	var req task.CreateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	req.Title = strings.TrimSpace(req.Title)

	if req.Title == "" {
		RespondValidation(ctx, "Invalid request body", gin.H{
			"fields": []FieldError{
				{Field: "title", Rule: "required", Message: "is required"},
			},
		})
		return
	}

	req.ApplyDefaults()

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	t, err := h.repo.Create(cctx, ownerID, req)

	if err != nil {
		RespondInternal(ctx, "Could not create task")
		return
	}

	h.invalidateList(ownerID)

	ctx.JSON(http.StatusCreated, gin.H{"task": t})
}

func (h *TasksHandler) UpdateTask(ctx *gin.Context) {
	ownerID, ok := userIDOrAbort(ctx)

	if !ok {
		return
	}

	id, ok := taskIDOrAbort(ctx)

	if !ok {
		return
	}

	var req task.UpdateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)

		if trimmed == "" {
			RespondValidation(ctx, "Invalid request body", gin.H{
				"fields": []FieldError{
					{Field: "title", Rule: "min", Param: "1", Message: "must be at least 1"},
				},
			})
			return
		}

		req.Title = &trimmed
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	t, err := h.repo.Update(cctx, id, ownerID, req)

	if err != nil {
		if err == task.ErrNotFound {
			RespondNotFound(ctx, "Task not found or unauthorized")
			return
		}

		RespondInternal(ctx, "Could not update task")
		return
	}

	h.invalidateList(ownerID)

	ctx.JSON(http.StatusOK, gin.H{"task": t})
}

func (h *TasksHandler) DeleteTask(ctx *gin.Context) {
	ownerID, ok := userIDOrAbort(ctx)

	if !ok {
		return
	}

	id, ok := taskIDOrAbort(ctx)

	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.repo.Delete(cctx, id, ownerID)

	if err != nil {
		if err == task.ErrNotFound {
			RespondNotFound(ctx, "Task not found or unauthorized")
			return
		}

		RespondInternal(ctx, "Could not delete task")
		return
	}

	h.invalidateList(ownerID)

	ctx.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}
