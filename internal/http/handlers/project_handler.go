package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/reelforge/internal/auth"
	repos "github.com/yungbote/reelforge/internal/data/repos/pipeline"
	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/http/response"
	"github.com/yungbote/reelforge/internal/pkg/ctxutil"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	"github.com/yungbote/reelforge/internal/pkg/logger"
	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pipeline/orchestrator"
	"github.com/yungbote/reelforge/internal/platform/apierr"
)

/*
ProjectHandler is the thin façade over the pipeline domain: every route
reads/writes the Project Registry and Task Broker through ProjectRepo
and the Orchestrator. It touches the arena directly only in the seed
config write, raw-input upload and artifact download endpoints (the
routes that need raw bytes), and in submit and reboot, which check for
a canvas recording (reboot also resets the arena to its seed set).
*/
type ProjectHandler struct {
	log          *logger.Logger
	projectRepo  repos.ProjectRepo
	taskRepo     repos.StageTaskRepo
	orchestrator *orchestrator.Orchestrator
	arenaRoot    string

	// publishCredentialHash gates SubmitPublication when set; empty
	// means publication needs only an authenticated owner.
	publishCredentialHash string
}

func NewProjectHandler(log *logger.Logger, projectRepo repos.ProjectRepo, taskRepo repos.StageTaskRepo, orch *orchestrator.Orchestrator, arenaRoot string) *ProjectHandler {
	return &ProjectHandler{
		log:                   log.With("handler", "ProjectHandler"),
		publishCredentialHash: os.Getenv("PUBLISH_CREDENTIAL_HASH"),
		projectRepo:           projectRepo,
		taskRepo:              taskRepo,
		orchestrator:          orch,
		arenaRoot:             arenaRoot,
	}
}

type createProjectRequest struct {
	Name       string        `json:"name" binding:"required"`
	FolderName string        `json:"folder_name" binding:"required"`
	Config     domain.Config `json:"config"`
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}

	configBytes, err := marshalConfig(req.Config)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}

	project := &domain.Project{
		ID:          uuid.New(),
		OwnerUserID: rd.UserID,
		Name:        req.Name,
		FolderName:  req.FolderName,
		Status:      domain.ProjectStatusUploading,
		Config:      datatypes.JSON(configBytes),
	}
	created, err := h.projectRepo.Create(dbctx.Context{Ctx: c.Request.Context()}, project)
	if err != nil {
		ae := apierr.FromError(err)
		response.RespondError(c, ae.Status, ae.Code, err)
		return
	}

	ar, err := arena.New(filepath.Join(h.arenaRoot, created.FolderName))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	if err := ar.Write("config.json", configBytes); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}

	response.RespondOK(c, created)
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	project, err := h.projectRepo.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	if project == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	response.RespondOK(c, project)
}

// UploadInputs receives the raw recordings as multipart form files:
// "screen" and "webcam" for the classic two-source capture, or
// "combined" for a pre-composited canvas recording. Once a primary
// source (screen or combined) is in the arena the project moves from
// uploading to converting, ready for SubmitFull.
func (h *ProjectHandler) UploadInputs(c *gin.Context) {
	h.withProject(c, func(project *domain.Project) {
		if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
			return
		}
		ar, err := arena.New(filepath.Join(h.arenaRoot, project.FolderName))
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "internal", err)
			return
		}
		saved := map[string]string{}
		for field, target := range map[string]string{
			"screen": "screen_raw", "webcam": "webcam_raw",
		} {
			fh, err := c.FormFile(field)
			if err != nil {
				continue
			}
			ext := filepath.Ext(fh.Filename)
			if ext == "" {
				ext = ".webm"
			}
			name := target + ext
			if err := c.SaveUploadedFile(fh, ar.Path(name)); err != nil {
				response.RespondError(c, http.StatusInternalServerError, "internal", err)
				return
			}
			saved[field] = name
		}
		if fh, err := c.FormFile("combined"); err == nil {
			if err := c.SaveUploadedFile(fh, ar.Path("combined.webm")); err != nil {
				response.RespondError(c, http.StatusInternalServerError, "internal", err)
				return
			}
			saved["combined"] = "combined.webm"
		}
		if len(saved) == 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("no input files in request"))
			return
		}
		if _, ok := saved["screen"]; ok || saved["combined"] != "" {
			if _, err := h.projectRepo.UpdateFields(dbctx.Context{Ctx: c.Request.Context()}, project.ID, map[string]interface{}{
				"status": string(domain.ProjectStatusConverting),
			}); err != nil {
				response.RespondError(c, http.StatusInternalServerError, "internal", err)
				return
			}
		}
		response.RespondOK(c, gin.H{"uploaded": saved})
	})
}

// canvasInput reports whether the arena holds a pre-composited canvas
// recording instead of separate raw sources. A canvas project skips
// stage 0: there is nothing to normalize.
func canvasInput(ar arena.Arena) bool {
	return ar.Exists("combined.webm") && !ar.Exists("screen.mp4")
}

func (h *ProjectHandler) SubmitFull(c *gin.Context) {
	h.withProject(c, func(project *domain.Project) {
		ar, err := arena.New(filepath.Join(h.arenaRoot, project.FolderName))
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "internal", err)
			return
		}
		chainID, err := h.orchestrator.SubmitFull(dbctx.Context{Ctx: c.Request.Context()}, project, canvasInput(ar))
		if err != nil {
			ae := apierr.FromError(err)
			response.RespondError(c, ae.Status, ae.Code, err)
			return
		}
		response.RespondOK(c, gin.H{"chain_id": chainID})
	})
}

// Start/End deliberately carry no "required" binding: 0 (stage 0) is a
// legitimate value for both and gin's required validator rejects zero.
type submitPartialRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (h *ProjectHandler) SubmitPartial(c *gin.Context) {
	var req submitPartialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	h.withProject(c, func(project *domain.Project) {
		chainID, err := h.orchestrator.SubmitPartial(dbctx.Context{Ctx: c.Request.Context()}, project, domain.StageIndex(req.Start), domain.StageIndex(req.End))
		if err != nil {
			ae := apierr.FromError(err)
			response.RespondError(c, ae.Status, ae.Code, err)
			return
		}
		response.RespondOK(c, gin.H{"chain_id": chainID})
	})
}

type submitPublicationRequest struct {
	Credential string `json:"credential"`
}

// SubmitPublication is the human-gated hand-off into the irreversible
// stage. When the deployment configures PUBLISH_CREDENTIAL_HASH the
// caller must re-enter the publish credential with the request; the
// bcrypt comparison happens here, never a decryption.
func (h *ProjectHandler) SubmitPublication(c *gin.Context) {
	if h.publishCredentialHash != "" {
		var req submitPublicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
			return
		}
		if !auth.VerifyCredential(h.publishCredentialHash, req.Credential) {
			response.RespondError(c, http.StatusForbidden, "forbidden", errors.New("publish credential mismatch"))
			return
		}
	}
	h.withProject(c, func(project *domain.Project) {
		chainID, err := h.orchestrator.SubmitPublication(dbctx.Context{Ctx: c.Request.Context()}, project)
		if err != nil {
			ae := apierr.FromError(err)
			response.RespondError(c, ae.Status, ae.Code, err)
			return
		}
		response.RespondOK(c, gin.H{"chain_id": chainID})
	})
}

func (h *ProjectHandler) Revoke(c *gin.Context) {
	h.withProject(c, func(project *domain.Project) {
		if err := h.orchestrator.Revoke(dbctx.Context{Ctx: c.Request.Context()}, project); err != nil {
			response.RespondError(c, http.StatusInternalServerError, "internal", err)
			return
		}
		response.RespondOK(c, gin.H{"revoked": true})
	})
}

// Reboot revokes any in-flight chain, resets the project to its seed
// artifact set, then immediately resubmits the full pipeline — the
// three-step "reboot(project)" operation in one request.
func (h *ProjectHandler) Reboot(c *gin.Context) {
	h.withProject(c, func(project *domain.Project) {
		ctx := dbctx.Context{Ctx: c.Request.Context()}
		if err := h.orchestrator.Reboot(ctx, project); err != nil {
			response.RespondError(c, http.StatusInternalServerError, "internal", err)
			return
		}
		ar, err := arena.New(filepath.Join(h.arenaRoot, project.FolderName))
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "internal", err)
			return
		}
		// A canvas project's recording is combined.webm itself, so it
		// joins the seed set the reset preserves.
		canvas := canvasInput(ar)
		seeds := []string{"config.json", "screen.mp4", "webcam.mp4"}
		if canvas {
			seeds = append(seeds, "combined.webm")
		}
		if err := ar.Reset(seeds); err != nil {
			response.RespondError(c, http.StatusInternalServerError, "internal", err)
			return
		}
		chainID, err := h.orchestrator.SubmitFull(ctx, project, canvas)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "internal", err)
			return
		}
		response.RespondOK(c, gin.H{"rebooted": true, "chain_id": chainID})
	})
}

func (h *ProjectHandler) GetOutput(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	name := c.Param("name")
	project, err := h.projectRepo.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	if project == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	outputs := project.OutputsMap()
	relPath, ok := outputs[name]
	if !ok {
		response.RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	ar, err := arena.New(filepath.Join(h.arenaRoot, project.FolderName))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	c.File(ar.Path(relPath))
}

func (h *ProjectHandler) withProject(c *gin.Context, fn func(project *domain.Project)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	project, err := h.projectRepo.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	if project == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	fn(project)
}

func marshalConfig(cfg domain.Config) ([]byte, error) {
	return json.Marshal(cfg)
}
