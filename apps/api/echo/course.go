package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
)

type courseApi struct {
	svc    *course.Service
	scores *score.Service
}

func registerCourseAPI(g *echo.Group, svc *course.Service, scores *score.Service, jwt, auth echo.MiddlewareFunc) {
	api := courseApi{svc: svc, scores: scores}

	cg := g.Group("/class-subjects", jwt, auth)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id/status", api.setStatus, adminMiddleware())
	cg.POST("/:id/enrollments", api.enroll, adminMiddleware())
}

// EnrollRequest enrolls a student in the class-subject of the path.
type EnrollRequest struct {
	StudentID string `json:"student_id"`
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewClassSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassSubject")
	}
	cs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class subject")
	}
	return ctx.JSON(http.StatusCreated, cs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, ListResponse{Results: []course.ClassSubject{}})
	}
	subjects, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying class subjects")
	}
	return ctx.JSON(http.StatusOK, ListResponse{Results: subjects})
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	cs, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class subject")
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *courseApi) setStatus(ctx echo.Context) error {
	var data course.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	cs, err := api.svc.SetStatus(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting class subject status")
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	var data EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	rec, created, err := api.scores.Enroll(ctx.Request().Context(), score.Enrollment{
		StudentID:      data.StudentID,
		ClassSubjectID: ctx.Param("id"),
	})
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, rec)
}
