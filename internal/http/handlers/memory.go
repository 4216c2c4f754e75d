package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mementolink/mementolink-backend/internal/clients/gcp"
	"github.com/mementolink/mementolink-backend/internal/http/response"
	"github.com/mementolink/mementolink-backend/internal/platform/ctxutil"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/types"
)

const maxMediaUpload = 32 << 20

type MemoryHandler struct {
	log      *logger.Logger
	memories repos.MemoryRepo
	bucket   gcp.BucketService
}

func NewMemoryHandler(baseLog *logger.Logger, memories repos.MemoryRepo, bucket gcp.BucketService) *MemoryHandler {
	return &MemoryHandler{
		log:      baseLog.With("handler", "MemoryHandler"),
		memories: memories,
		bucket:   bucket,
	}
}

// UploadMedia stores one media file for a memory and appends a media block.
func (mh *MemoryHandler) UploadMedia(c *gin.Context) {
	if mh.bucket == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "storage_unavailable", fmt.Errorf("media storage not configured"))
		return
	}
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
		return
	}
	memoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid memory id"))
		return
	}

	records, err := mh.memories.GetByIDs(c.Request.Context(), nil, []uuid.UUID{memoryID})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if len(records) == 0 {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("memory not found"))
		return
	}
	memory := records[0]
	if memory.OwnerUID != rd.UserID {
		response.RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("memory belongs to another claimant"))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxMediaUpload)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("missing file upload: %w", err))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	key := fmt.Sprintf("memories/%s/%s%s", memoryID, uuid.New(), ext)
	if err := mh.bucket.UploadFile(c.Request.Context(), key, file); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		return
	}
	mediaURL := mh.bucket.GetPublicURL(key)

	var blocks []types.MemoryBlock
	if len(memory.Blocks) > 0 {
		if err := json.Unmarshal(memory.Blocks, &blocks); err != nil {
			mh.log.Warn("memory blocks decode failed, resetting", "error", err)
			blocks = nil
		}
	}
	blocks = append(blocks, types.MemoryBlock{
		Kind:     mediaKindForExt(ext),
		MediaKey: key,
		MediaURL: mediaURL,
	})
	raw, err := json.Marshal(blocks)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if err := mh.memories.UpdateFields(c.Request.Context(), nil, memoryID, map[string]any{
		"blocks": datatypes.JSON(raw),
	}); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return
	}

	response.RespondCreated(c, gin.H{
		"media_key": key,
		"media_url": mediaURL,
		"blocks":    len(blocks),
	})
}

func mediaKindForExt(ext string) string {
	switch ext {
	case ".mp4", ".m4v", ".webm", ".mov":
		return "video"
	case ".mp3", ".m4a":
		return "audio"
	default:
		return "image"
	}
}
