package auth

import (
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

const (
	TextCodeValidation   = "VALIDATION_ERROR"
	TextCodeUserNotFound = "USER_NOT_FOUND"
)

// AuthControllerRoutes are the paths served by AuthController
type AuthControllerRoutes struct {
	Login         string
	Me            string
	AccountStatus string
}

// AuthController serves login, the current identity and account moderation.
type AuthController struct {
	Logger Logger
	Routes *AuthControllerRoutes
	Auther *Auther
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger
func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

// WithControllerRoutes overrides the default route paths
func WithControllerRoutes(r *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if r != nil {
			c.Routes = r
		}
		return c
	}
}

func NewAuthController(auther *Auther, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Auther: auther,
		Routes: &AuthControllerRoutes{
			Login:         "/api/auth/login",
			Me:            "/api/auth/me",
			AccountStatus: "/api/admin/users/:id/status",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the controller. requireIdentity guards the
// current identity route and requireAdmin the moderation route.
func RegisterAuthRoutes(app fiber.Router, controller *AuthController, requireIdentity, requireAdmin fiber.Handler) {
	app.Post(controller.Routes.Login, controller.LoginPost).Name("auth.login.post")
	app.Get(controller.Routes.Me, requireIdentity, controller.MeGet).Name("auth.me.get")
	app.Put(controller.Routes.AccountStatus, requireAdmin, controller.AccountStatusPut).Name("admin.account-status.put")
}

// LoginRequest payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 200)),
	)
}

// LoginResponse is returned by LoginPost
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

func (a *AuthController) LoginPost(ctx *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := ctx.BodyParser(payload); err != nil {
		a.Logger.Debug("login parse payload", "error", err)
		return WriteError(ctx, badRequest("invalid request body", nil))
	}
	payload.Username = strings.TrimSpace(payload.Username)

	if err := payload.Validate(); err != nil {
		return WriteError(ctx, badRequest("invalid login payload", err))
	}

	res, err := a.Auther.Login(ctx.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return WriteError(ctx, err)
	}

	return ctx.JSON(LoginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Username:  res.Identity.Username,
	})
}

func (a *AuthController) MeGet(ctx *fiber.Ctx) error {
	identity, ok := IdentityFromContext(ctx.UserContext())
	if !ok {
		return WriteError(ctx, ErrAuthenticationRequired)
	}
	return ctx.JSON(identity)
}

// AccountStatusRequest payload
type AccountStatusRequest struct {
	Enabled *bool `json:"enabled"`
}

// Validate will run validation rules
func (r AccountStatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Enabled, validation.NotNil),
	)
}

func (a *AuthController) AccountStatusPut(ctx *fiber.Ctx) error {
	id, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return WriteError(ctx, badRequest("invalid user id", nil))
	}

	payload := new(AccountStatusRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return WriteError(ctx, badRequest("invalid request body", nil))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(ctx, badRequest("invalid account status payload", err))
	}

	actor, _ := IdentityFromContext(ctx.UserContext())
	identity, err := a.Auther.SetAccountStatus(ctx.UserContext(), actor, id, *payload.Enabled)
	if err != nil {
		if errors.IsNotFound(err) {
			return WriteError(ctx, errors.New("user not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound).
				WithTextCode(TextCodeUserNotFound))
		}
		a.Logger.Error("account status update failed", "id", id, "error", err)
		return WriteError(ctx, err)
	}

	a.Logger.Info("account status updated", "id", id, "enabled", identity.Enabled, "actor", actor.Username)

	return ctx.JSON(identity)
}

func badRequest(message string, validationErr error) *errors.Error {
	var out *errors.Error
	if validationErr != nil {
		out = errors.FromOzzoValidation(validationErr, message)
	} else {
		out = errors.New(message, errors.CategoryBadInput)
	}
	return out.WithCode(errors.CodeBadRequest).WithTextCode(TextCodeValidation)
}
