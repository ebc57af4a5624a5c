package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/askuphq/askup/core/qset"
	"github.com/askuphq/askup/core/user"
)

type qsetApi struct {
	svc      qset.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

// optionalJWT authenticates the request when a token is present and lets
// anonymous requests through untouched. Public qsets are readable without
// an account.
func optionalJWT() echo.MiddlewareFunc {
	conf := appJWTConfig
	conf.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return middleware.JWTWithConfig(conf)
}

func registerQsetAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc qset.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := qsetApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	optJWT := optionalJWT()

	qg := g.Group("/qsets")

	// optionally-authed endpoints; visibility is decided per qset
	og := qg.Group("", optJWT)
	og.GET("/:id", api.retrieve)
	og.GET("/:id/children", api.children)
	og.GET("/:id/breadcrumbs", api.breadcrumbs)
	og.GET("/:id/questions-count", api.questionsCount)

	// authed endpoints
	ag := qg.Group("", jwt)
	ag.GET("", api.organizations)
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/move", api.move)
	ag.POST("/:id/members", api.addMember)
	ag.DELETE("/:id/members/:userID", api.removeMember)
	ag.GET("/:id/stats/:userID", api.userStats)

	wg := g.Group("/questions")
	owg := wg.Group("", optJWT)
	owg.GET("/:id", api.retrieveQuestion)

	awg := wg.Group("", jwt)
	awg.POST("", api.createQuestion)
	awg.PUT("/:id", api.updateQuestion)
	awg.DELETE("/:id", api.destroyQuestion)
	awg.POST("/:id/move", api.moveQuestion)
	awg.POST("/:id/votes", api.vote)
	awg.POST("/:id/answers", api.answer)
}

// Qset handlers

func (api *qsetApi) create(ctx echo.Context) error {
	var data qset.NewQset
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQset")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	qs, err := api.svc.CreateQset(ctx.Request().Context(), &actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, qs)
}

func (api *qsetApi) retrieve(ctx echo.Context) error {
	actor, err := optionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	qs, err := api.svc.GetQset(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, qs)
}

func (api *qsetApi) organizations(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	orgs, err := api.svc.Organizations(ctx.Request().Context(), &actor)
	if err != nil {
		return err
	}
	if orgs == nil {
		orgs = []qset.Qset{}
	}
	return ctx.JSON(http.StatusOK, orgs)
}

func (api *qsetApi) children(ctx echo.Context) error {
	actor, err := optionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := qset.CleanChildrenFilter(ctx.QueryParam("filter"))

	children, err := api.svc.ListChildren(ctx.Request().Context(), actor, ctx.Param("id"), filter)
	if err != nil {
		return err
	}
	if children.Qsets == nil {
		children.Qsets = []qset.Qset{}
	}
	if children.Questions == nil {
		children.Questions = []qset.Question{}
	}
	return ctx.JSON(http.StatusOK, children)
}

func (api *qsetApi) breadcrumbs(ctx echo.Context) error {
	actor, err := optionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	crumbs, err := api.svc.Breadcrumbs(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	if crumbs == nil {
		crumbs = []qset.Crumb{}
	}
	return ctx.JSON(http.StatusOK, crumbs)
}

func (api *qsetApi) questionsCount(ctx echo.Context) error {
	actor, err := optionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// visibility check piggybacks on GetQset
	if _, err = api.svc.GetQset(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	count, err := api.svc.QuestionsCount(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, QuestionsCountResponse{QuestionsCount: count})
}

func (api *qsetApi) update(ctx echo.Context) error {
	var data qset.UpdateQset
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQset")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	qs, err := api.svc.UpdateQset(ctx.Request().Context(), &actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, qs)
}

func (api *qsetApi) move(ctx echo.Context) error {
	var data MoveQsetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MoveQsetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.MoveQset(ctx.Request().Context(), &actor, ctx.Param("id"), data.ParentID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *qsetApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.DeleteQset(ctx.Request().Context(), &actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *qsetApi) addMember(ctx echo.Context) error {
	var data MemberRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MemberRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.AddMember(ctx.Request().Context(), &actor, ctx.Param("id"), data.UserID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *qsetApi) removeMember(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.RemoveMember(ctx.Request().Context(), &actor, ctx.Param("id"), ctx.Param("userID")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *qsetApi) userStats(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	stats, err := api.svc.UserStats(ctx.Request().Context(), &actor, ctx.Param("id"), ctx.Param("userID"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

// Question handlers

func (api *qsetApi) createQuestion(ctx echo.Context) error {
	var data qset.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := api.svc.CreateQuestion(ctx.Request().Context(), &actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *qsetApi) retrieveQuestion(ctx echo.Context) error {
	actor, err := optionalContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := api.svc.GetQuestion(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *qsetApi) updateQuestion(ctx echo.Context) error {
	var data qset.UpdateQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := api.svc.UpdateQuestion(ctx.Request().Context(), &actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *qsetApi) destroyQuestion(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.DeleteQuestion(ctx.Request().Context(), &actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *qsetApi) moveQuestion(ctx echo.Context) error {
	var data MoveQuestionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MoveQuestionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.MoveQuestion(ctx.Request().Context(), &actor, ctx.Param("id"), data.QsetID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *qsetApi) vote(ctx echo.Context) error {
	var data VoteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VoteRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	total, err := api.svc.CastVote(ctx.Request().Context(), &actor, ctx.Param("id"), data.Value)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, VoteResponse{VoteValue: total})
}

func (api *qsetApi) answer(ctx echo.Context) error {
	var data qset.NewAnswer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnswer")
	}
	data.QuestionID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.CreateAnswer(ctx.Request().Context(), &actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

type (
	MoveQsetRequest struct {
		ParentID string `json:"parent_id" validate:"required"`
	}

	MoveQuestionRequest struct {
		QsetID string `json:"qset_id" validate:"required"`
	}

	MemberRequest struct {
		UserID string `json:"user_id" validate:"required"`
	}

	VoteRequest struct {
		Value int `json:"value" validate:"required,votevalue"`
	}

	VoteResponse struct {
		VoteValue int `json:"vote_value"`
	}

	QuestionsCountResponse struct {
		QuestionsCount int `json:"questions_count"`
	}
)

func (mr *MoveQsetRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(mr)
}

func (mr *MoveQuestionRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(mr)
}

func (mr *MemberRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(mr)
}

func (vr *VoteRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(vr)
}
