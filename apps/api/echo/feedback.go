package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/user"
)

type feedbackApi struct {
	mailSvc  core.EmailService
	usrSvc   user.ServiceInterface
	conf     *core.Config
	validate *validator.Validate
}

func registerFeedbackAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	mailSvc core.EmailService,
	usrSvc user.ServiceInterface,
	conf *core.Config,
	validate *validator.Validate,
) {
	api := feedbackApi{
		mailSvc:  mailSvc,
		usrSvc:   usrSvc,
		conf:     conf,
		validate: validate,
	}

	g.POST("/feedback", api.create, jwt)
}

func (api *feedbackApi) create(ctx echo.Context) error {
	var data FeedbackRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FeedbackRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// feedback goes to all admins; fall back on the default address
	// when none exist
	to := []mail.Address{api.conf.DefaultFromEmail}
	if admins, err := api.usrSvc.Query(ctx.Request().Context(), &user.QueryFilter{Roles: []string{user.RoleAdmin}}); err != nil {
		return errors.Wrap(err, "querying admins")
	} else if len(admins) > 0 {
		to = make([]mail.Address, len(admins))
		for i, adm := range admins {
			to[i] = mail.Address{Name: adm.Name, Address: adm.Email}
		}
	}

	msg := core.EmailMessage{
		To:           to,
		ReplyTo:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      api.conf.AppName + " Feedback",
		TemplateName: "feedback",
		TemplateData: struct {
			Username string
			Message  string
		}{usr.Username, data.Message},
	}
	api.mailSvc.SendMessages(&msg)

	return ctx.JSON(http.StatusOK, SuccessResponse{"Thank you for your feedback"})
}

type FeedbackRequest struct {
	Message string `json:"message" validate:"required"`
}

func (fr *FeedbackRequest) Validate(validate *validator.Validate) error {
	fr.Message = core.CleanString(fr.Message)
	return validate.Struct(fr)
}
