package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/service"
	"github.com/kursadbilgin/notification-dispatcher/internal/template"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	// HeaderTenantID selects the tenant of a request. Absent means the host.
	HeaderTenantID = "X-Tenant-Id"
)

type NotificationService interface {
	GetAssignableNotifiers(culture string) []service.NotifierGroup
	GetAssignableTemplates(ctx context.Context) ([]template.Summary, error)
	Send(ctx context.Context, in service.SendInput) (*domain.Event, error)
	ListUserNotifications(ctx context.Context, params repository.UserNotificationListParams) ([]repository.UserNotificationView, int64, error)
	ChangeReadState(ctx context.Context, tenantID, userID, notificationID string, state domain.ReadState) error
	Subscribe(ctx context.Context, sub domain.Subscription) error
	Unsubscribe(ctx context.Context, tenantID, userID, name string) error
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/notifiers", h.ListNotifiers)
	v1.Get("/templates", h.ListTemplates)
	v1.Post("/notifications", h.SendNotification)
	v1.Get("/notifications", h.ListUserNotifications)
	v1.Put("/notifications/:id/read-state", h.ChangeReadState)
	v1.Post("/subscriptions", h.Subscribe)
	v1.Delete("/subscriptions", h.Unsubscribe)

	return nil
}

type userRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type sendNotificationRequest struct {
	Name            string         `json:"name"`
	Severity        string         `json:"severity"`
	TemplateName    string         `json:"templateName"`
	Culture         string         `json:"culture"`
	FormUser        string         `json:"formUser"`
	ExtraProperties map[string]any `json:"extraProperties"`
	Users           []userRequest  `json:"users"`
	UseProviders    []string       `json:"useProviders"`
	CorrelationID   string         `json:"correlationId"`
}

type sendNotificationResponse struct {
	EventID      string    `json:"eventId"`
	Name         string    `json:"name"`
	TenantID     string    `json:"tenantId,omitempty"`
	Severity     string    `json:"severity"`
	CreationTime time.Time `json:"creationTime"`
}

type changeReadStateRequest struct {
	UserID    string `json:"userId"`
	ReadState string `json:"readState"`
}

type subscriptionRequest struct {
	UserID           string `json:"userId"`
	UserName         string `json:"userName"`
	NotificationName string `json:"notificationName"`
}

type notifierResponse struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description,omitempty"`
	Scope       string   `json:"scope"`
	Lifetime    string   `json:"lifetime"`
	Providers   []string `json:"providers"`
	Template    string   `json:"template,omitempty"`
}

type notifierGroupResponse struct {
	Name      string             `json:"name"`
	Notifiers []notifierResponse `json:"notifiers"`
}

type notificationDataResponse struct {
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	FormUser        string         `json:"formUser,omitempty"`
	CreateTime      time.Time      `json:"createTime"`
	ExtraProperties map[string]any `json:"extraProperties,omitempty"`
}

type userNotificationResponse struct {
	NotificationID string                   `json:"notificationId"`
	Name           string                   `json:"name"`
	Severity       string                   `json:"severity"`
	ReadState      string                   `json:"readState"`
	Data           notificationDataResponse `json:"data"`
	CreationTime   time.Time                `json:"creationTime"`
}

type listUserNotificationsResponse struct {
	Data []userNotificationResponse `json:"data"`
	Meta listMeta                   `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) ListNotifiers(c *fiber.Ctx) error {
	groups := h.service.GetAssignableNotifiers(strings.TrimSpace(c.Query("culture")))

	out := make([]notifierGroupResponse, 0, len(groups))
	for _, g := range groups {
		notifiers := make([]notifierResponse, 0, len(g.Notifiers))
		for _, n := range g.Notifiers {
			providers := n.Providers
			if providers == nil {
				providers = []string{}
			}
			notifiers = append(notifiers, notifierResponse{
				Name:        n.Name,
				DisplayName: n.DisplayName,
				Description: n.Description,
				Scope:       n.Scope.String(),
				Lifetime:    n.Lifetime.String(),
				Providers:   providers,
				Template:    n.Template,
			})
		}
		out = append(out, notifierGroupResponse{Name: g.Name, Notifiers: notifiers})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": out})
}

func (h *NotificationHandler) ListTemplates(c *fiber.Ctx) error {
	templates, err := h.service.GetAssignableTemplates(c.Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": templates})
}

func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	severity, err := domain.ParseSeverityFromString(req.Severity)
	if err != nil {
		return toHTTPError(err)
	}

	users := make([]domain.UserIdentifier, 0, len(req.Users))
	for _, u := range req.Users {
		users = append(users, domain.UserIdentifier{
			UserID:   strings.TrimSpace(u.UserID),
			UserName: strings.TrimSpace(u.UserName),
		})
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = requestCorrelationID(c)
	}

	e, err := h.service.Send(c.Context(), service.SendInput{
		Name:            req.Name,
		TenantID:        requestTenantID(c),
		Severity:        severity,
		TemplateName:    req.TemplateName,
		Culture:         req.Culture,
		FormUser:        req.FormUser,
		ExtraProperties: req.ExtraProperties,
		Users:           users,
		UseProviders:    req.UseProviders,
		CorrelationID:   correlationID,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(sendNotificationResponse{
		EventID:      e.ID,
		Name:         e.Name,
		TenantID:     e.TenantID,
		Severity:     e.Severity.String(),
		CreationTime: e.CreationTime,
	})
}

func (h *NotificationHandler) ListUserNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	views, total, err := h.service.ListUserNotifications(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]userNotificationResponse, 0, len(views))
	for _, v := range views {
		data = append(data, toUserNotificationResponse(v))
	}

	return c.Status(fiber.StatusOK).JSON(listUserNotificationsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) ChangeReadState(c *fiber.Ctx) error {
	var req changeReadStateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	state, err := domain.ParseReadStateFromString(req.ReadState)
	if err != nil {
		return toHTTPError(err)
	}

	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.ChangeReadState(c.Context(), requestTenantID(c), strings.TrimSpace(req.UserID), id, state); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"readState":      state.String(),
	})
}

func (h *NotificationHandler) Subscribe(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub := domain.Subscription{
		TenantID:         requestTenantID(c),
		UserID:           strings.TrimSpace(req.UserID),
		UserName:         strings.TrimSpace(req.UserName),
		NotificationName: strings.TrimSpace(req.NotificationName),
	}
	if err := h.service.Subscribe(c.Context(), sub); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"userId":           sub.UserID,
		"notificationName": sub.NotificationName,
	})
}

func (h *NotificationHandler) Unsubscribe(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("userId"))
	name := strings.TrimSpace(c.Query("notificationName"))

	if err := h.service.Unsubscribe(c.Context(), requestTenantID(c), userID, name); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseListParams(c *fiber.Ctx) (repository.UserNotificationListParams, error) {
	params := repository.UserNotificationListParams{
		TenantID: requestTenantID(c),
		UserID:   strings.TrimSpace(c.Query("userId")),
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.UserID == "" {
		return repository.UserNotificationListParams{}, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if params.Page < 1 {
		return repository.UserNotificationListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.UserNotificationListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if raw := strings.TrimSpace(c.Query("readState")); raw != "" {
		state, err := domain.ParseReadStateFromString(raw)
		if err != nil {
			return repository.UserNotificationListParams{}, err
		}
		params.ReadState = &state
	}

	return params, nil
}

func requestTenantID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(HeaderTenantID))
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toUserNotificationResponse(v repository.UserNotificationView) userNotificationResponse {
	n := v.Notification
	return userNotificationResponse{
		NotificationID: v.NotificationID,
		Name:           n.Name,
		Severity:       n.Severity.String(),
		ReadState:      v.ReadState.String(),
		Data: notificationDataResponse{
			Title:           n.Data.Title,
			Message:         n.Data.Message,
			FormUser:        n.Data.FormUser,
			CreateTime:      n.Data.CreateTime,
			ExtraProperties: n.Data.ExtraProperties,
		},
		CreationTime: n.CreationTime,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
