package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/user"
)

const recordContextKey = "record"

var (
	errRecordNotFoundInCtx  = errors.New("score record not found in echo.Context")
	errInvalidStatus        = errors.New("status must be CONFIRM")
	errScoreAndStatus       = errors.New("score and status cannot be updated together")
	errClassSubjectRequired = errors.New("class_subject_id is required")
)

type scoreApi struct {
	svc     *score.Service
	courses *course.Service
}

func registerScoreAPI(g *echo.Group, svc *score.Service, courses *course.Service, jwt, auth echo.MiddlewareFunc) {
	api := scoreApi{svc: svc, courses: courses}

	sg := g.Group("/scores", jwt, auth)
	sg.GET("", api.query)

	dg := sg.Group("/:id", api.recordMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, roleMiddleware(user.RoleTeacher))

	g.GET("/students/:id/transcript", api.transcript, jwt, auth)
}

// UpdateRecordRequest either updates the scores of a record or confirms it.
type UpdateRecordRequest struct {
	Score  map[score.Slot]*float64 `json:"score"`
	Status score.Status            `json:"status"`

	// AverageScore is accepted from older clients and ignored: the conclusion is computed on confirm.
	AverageScore *float64 `json:"average_score"`
}

func (api *scoreApi) query(ctx echo.Context) error {
	filter := new(score.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, ListResponse{Results: []score.View{}})
	}
	filter.ClassSubjectID = core.CleanString(filter.ClassSubjectID)
	filter.StudentID = core.CleanString(filter.StudentID)

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	switch {
	case usr.IsAdmin():
	case usr.IsStudent():
		if filter.StudentID != "" && filter.StudentID != usr.ID {
			return errHttpForbidden
		}
		filter.StudentID = usr.ID
	case usr.IsTeacher():
		if filter.ClassSubjectID == "" {
			return core.NewValidationError(
				errClassSubjectRequired,
				core.FieldError{Field: "class_subject_id", Error: errClassSubjectRequired.Error()},
			)
		}
		cs, err := api.courses.Get(ctx.Request().Context(), filter.ClassSubjectID)
		if err != nil {
			return errors.Wrap(err, "getting class subject")
		}
		if !cs.IsTaughtBy(usr.ID) {
			return errHttpForbidden
		}
	default:
		return errHttpForbidden
	}

	views, err := api.svc.QueryViews(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying score records")
	}
	return ctx.JSON(http.StatusOK, ListResponse{Results: views})
}

func (api *scoreApi) retrieve(ctx echo.Context) error {
	rec, ok := ctx.Get(recordContextKey).(score.Record)
	if !ok {
		return errors.Wrap(errRecordNotFoundInCtx, "retrieving object from context")
	}
	return api.respond(ctx, rec)
}

func (api *scoreApi) update(ctx echo.Context) error {
	rec, ok := ctx.Get(recordContextKey).(score.Record)
	if !ok {
		return errors.Wrap(errRecordNotFoundInCtx, "retrieving object from context")
	}

	var data UpdateRecordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecordRequest")
	}

	var err error
	switch {
	case data.Status != "" && data.Score != nil:
		return core.NewValidationError(errScoreAndStatus, core.FieldError{Field: "status", Error: errScoreAndStatus.Error()})
	case data.Status != "":
		if data.Status != score.StatusConfirm {
			return core.NewValidationError(errInvalidStatus, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
		}
		rec, err = api.svc.Confirm(ctx.Request().Context(), rec.ID)
		if err != nil {
			return errors.Wrap(err, "confirming score record")
		}
	default:
		rec, err = api.svc.UpdateScores(ctx.Request().Context(), rec.ID, score.Update{Score: data.Score})
		if err != nil {
			return errors.Wrap(err, "updating scores")
		}
	}
	return api.respond(ctx, rec)
}

func (api *scoreApi) respond(ctx echo.Context, rec score.Record) error {
	views, err := api.svc.Views(ctx.Request().Context(), rec)
	if err != nil {
		return errors.Wrap(err, "building score record view")
	}
	return ctx.JSON(http.StatusOK, views[0])
}

func (api *scoreApi) transcript(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	studentID := ctx.Param("id")
	if usr.IsStudent() && usr.ID != studentID {
		return errHttpForbidden
	}

	tr, err := api.svc.Transcript(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "building transcript")
	}
	return ctx.JSON(http.StatusOK, tr)
}

// recordMiddleware loads the record of the `id` path param if the context user can see it:
// admins see all records, teachers those of the class-subjects they teach, students their own.
func (api *scoreApi) recordMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		rec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding score record by ID")
		}

		var visible bool
		switch {
		case usr.IsAdmin():
			visible = true
		case usr.IsStudent():
			visible = rec.StudentID == usr.ID
		case usr.IsTeacher():
			cs, err := api.courses.Get(ctx.Request().Context(), rec.ClassSubjectID)
			if err != nil {
				return errors.Wrap(err, "getting class subject")
			}
			visible = cs.IsTaughtBy(usr.ID)
		}
		if !visible {
			return score.ErrNotFound
		}

		ctx.Set(recordContextKey, rec)
		return next(ctx)
	}
}
