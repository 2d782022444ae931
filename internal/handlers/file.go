package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
	"github.com/NREL/torc-sub002/internal/sse"
	"github.com/NREL/torc-sub002/internal/types"
)

type FileHandler struct {
	files repos.FileRepo
	hub   *sse.Hub
}

func NewFileHandler(files repos.FileRepo, hub *sse.Hub) *FileHandler {
	return &FileHandler{files: files, hub: hub}
}

// POST /workflows/:id/files
func (h *FileHandler) Create(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var f types.File
	if err := c.ShouldBindJSON(&f); err != nil {
		RespondError(c, apierr.BadRequest("invalid file payload: %v", err))
		return
	}
	if f.Name == "" || f.Path == "" {
		RespondError(c, apierr.Unprocessable("file name and path are required"))
		return
	}
	f.WorkflowID = workflowID
	if err := h.files.Create(c.Request.Context(), nil, &f); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "files", Op: "create", Data: f})
	RespondCreated(c, f)
}

// GET /workflows/:id/files
func (h *FileHandler) List(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	env, err := h.files.List(c.Request.Context(), nil, workflowID, pageFromQuery(c))
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	RespondOK(c, env)
}

// GET /workflows/:id/files/:file_id
func (h *FileHandler) Get(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	f, err := h.files.GetByID(c.Request.Context(), nil, fileID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if f == nil || f.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("file %d not found in workflow %d", fileID, workflowID))
		return
	}
	RespondOK(c, f)
}

// PUT /workflows/:id/files/:file_id
// Touching st_mtime here is what makes downstream input hashes drift.
func (h *FileHandler) Update(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	existing, err := h.files.GetByID(c.Request.Context(), nil, fileID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if existing == nil || existing.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("file %d not found in workflow %d", fileID, workflowID))
		return
	}
	var f types.File
	if err := c.ShouldBindJSON(&f); err != nil {
		RespondError(c, apierr.BadRequest("invalid file payload: %v", err))
		return
	}
	f.ID = fileID
	f.WorkflowID = workflowID
	if err := h.files.Update(c.Request.Context(), nil, &f); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "files", Op: "update", Data: f})
	RespondOK(c, f)
}

// DELETE /workflows/:id/files/:file_id
func (h *FileHandler) Delete(c *gin.Context) {
	workflowID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}
	f, err := h.files.GetByID(c.Request.Context(), nil, fileID)
	if err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	if f == nil || f.WorkflowID != workflowID {
		RespondError(c, apierr.NotFound("file %d not found in workflow %d", fileID, workflowID))
		return
	}
	if err := h.files.Delete(c.Request.Context(), nil, fileID); err != nil {
		RespondError(c, apierr.Database(err))
		return
	}
	h.hub.Publish(sse.BroadcastEvent{WorkflowID: workflowID, Category: "files", Op: "delete", Data: gin.H{"file_id": fileID}})
	RespondNoContent(c)
}
