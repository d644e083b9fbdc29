package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/user"
)

type userApi struct {
	svc *user.Service
}

func registerUserAPI(g *echo.Group, svc *user.Service, jwt, auth echo.MiddlewareFunc) {
	api := userApi{svc: svc}

	ug := g.Group("/users", jwt, auth)
	ug.GET("/me", api.me)
	ug.POST("", api.create, adminMiddleware())
	ug.GET("", api.query, adminMiddleware())
}

// ListResponse wraps listed objects.
type ListResponse struct {
	Results interface{} `json:"results"`
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, ListResponse{Results: []user.User{}})
	}
	users, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, ListResponse{Results: users})
}
