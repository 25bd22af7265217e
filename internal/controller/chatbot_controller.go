package controller

import (
	"fmt"
	"io"
	"mime/multipart"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatbotController interface {
	RegisterRoutes(r fiber.Router)
	GetState(ctx *fiber.Ctx) error
	GetAllSessions(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	CreateSession(ctx *fiber.Ctx) error
	RenameSession(ctx *fiber.Ctx) error
	ActivateSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	GetFiles(ctx *fiber.Ctx) error
	UploadFiles(ctx *fiber.Ctx) error
	ToggleFile(ctx *fiber.Ctx) error
	DeleteFile(ctx *fiber.Ctx) error
	SendChat(ctx *fiber.Ctx) error
	RegenerateChat(ctx *fiber.Ctx) error
	GetQuickActions(ctx *fiber.Ctx) error
	RunQuickAction(ctx *fiber.Ctx) error
}

type chatbotController struct {
	chatbotService service.IChatbotService
}

func NewChatbotController(chatbotService service.IChatbotService) IChatbotController {
	return &chatbotController{
		chatbotService: chatbotService,
	}
}

func (c *chatbotController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Get("state", c.GetState)

	h.Get("sessions", c.GetAllSessions)
	h.Post("sessions", c.CreateSession)
	h.Get("sessions/:id", c.GetSession)
	h.Put("sessions/:id", c.RenameSession)
	h.Put("sessions/:id/activate", c.ActivateSession)
	h.Delete("sessions/:id", c.DeleteSession)

	h.Get("files", c.GetFiles)
	h.Post("files", c.UploadFiles)
	h.Put("files/:id/toggle", c.ToggleFile)
	h.Delete("files/:id", c.DeleteFile)

	h.Post("messages", c.SendChat)
	h.Post("messages/regenerate", c.RegenerateChat)

	h.Get("quick-actions", c.GetQuickActions)
	h.Post("quick-actions/:key", c.RunQuickAction)
}

func parseId(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (c *chatbotController) GetState(ctx *fiber.Ctx) error {
	res, err := c.chatbotService.GetState(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get state", res))
}

func (c *chatbotController) GetAllSessions(ctx *fiber.Ctx) error {
	res, err := c.chatbotService.GetAllSessions(ctx.UserContext(), ctx.Query("q"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all sessions", res))
}

func (c *chatbotController) GetSession(ctx *fiber.Ctx) error {
	id, err := parseId(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatbotService.GetSession(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *chatbotController) CreateSession(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return err
		}
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatbotService.CreateSession(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *chatbotController) RenameSession(ctx *fiber.Ctx) error {
	id, err := parseId(ctx)
	if err != nil {
		return err
	}

	var req dto.RenameSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatbotService.RenameSession(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success rename session", res))
}

func (c *chatbotController) ActivateSession(ctx *fiber.Ctx) error {
	id, err := parseId(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatbotService.ActivateSession(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success activate session", res))
}

func (c *chatbotController) DeleteSession(ctx *fiber.Ctx) error {
	id, err := parseId(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatbotService.DeleteSession(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success delete session", res))
}

func (c *chatbotController) GetFiles(ctx *fiber.Ctx) error {
	res, err := c.chatbotService.GetFiles(ctx.UserContext(), ctx.Query("q"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get files", res))
}

// UploadFiles accepts multipart "files" and an optional "session_id" field.
func (c *chatbotController) UploadFiles(ctx *fiber.Ctx) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart form with files")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no files uploaded")
	}

	sessionId := uuid.Nil
	if values := form.Value["session_id"]; len(values) > 0 && values[0] != "" {
		sessionId, err = uuid.Parse(values[0])
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid session_id")
		}
	}

	raws := make([]entity.RawFile, 0, len(headers))
	for _, fh := range headers {
		raw, err := readUpload(fh)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}

	res, err := c.chatbotService.UploadFiles(ctx.UserContext(), raws, sessionId)
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if len(res.Failed) > 0 {
		status = fiber.StatusMultiStatus
	}
	message := fmt.Sprintf("%d file(s) processed successfully", len(res.Files))
	return ctx.Status(status).JSON(serverutils.SuccessResponse(message, res))
}

func readUpload(fh *multipart.FileHeader) (entity.RawFile, error) {
	f, err := fh.Open()
	if err != nil {
		return entity.RawFile{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return entity.RawFile{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return entity.RawFile{
		Name:      fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}

func (c *chatbotController) ToggleFile(ctx *fiber.Ctx) error {
	id, err := parseId(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatbotService.ToggleFile(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success toggle file", res))
}

func (c *chatbotController) DeleteFile(ctx *fiber.Ctx) error {
	id, err := parseId(ctx)
	if err != nil {
		return err
	}

	if err := c.chatbotService.DeleteFile(ctx.UserContext(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete file", nil))
}

func (c *chatbotController) SendChat(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatbotService.SendChat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *chatbotController) RegenerateChat(ctx *fiber.Ctx) error {
	res, err := c.chatbotService.RegenerateChat(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success regenerate chat", res))
}

func (c *chatbotController) GetQuickActions(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get quick actions", c.chatbotService.GetQuickActions(ctx.UserContext())))
}

func (c *chatbotController) RunQuickAction(ctx *fiber.Ctx) error {
	res, err := c.chatbotService.RunQuickAction(ctx.UserContext(), ctx.Params("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success run quick action", res))
}
