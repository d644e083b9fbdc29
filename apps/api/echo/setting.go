package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
)

type settingApi struct {
	svc *setting.Service
}

func registerSettingAPI(g *echo.Group, svc *setting.Service, jwt, auth echo.MiddlewareFunc) {
	api := settingApi{svc: svc}

	sg := g.Group("/settings", jwt, auth)
	sg.GET("", api.query)
	sg.PUT("/score-schema", api.updateScoreSchema, adminMiddleware())
}

// query lists the settings record, if any: `{"results": [setting?]}`.
func (api *settingApi) query(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting setting")
	}
	results := make([]setting.Setting, 0, 1)
	if s != nil {
		results = append(results, *s)
	}
	return ctx.JSON(http.StatusOK, ListResponse{Results: results})
}

// RateSchemaRequest is a rate schema candidate, sent as a flat object of rates keyed by bucket.
// Only the body fills it: the binder skips unexported fields.
type RateSchemaRequest struct {
	rates map[score.Bucket]float64
}

func (r *RateSchemaRequest) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.rates)
}

// updateScoreSchema validates the rate schema in the body and saves it.
func (api *settingApi) updateScoreSchema(ctx echo.Context) error {
	var data RateSchemaRequest
	if err := ctx.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rate schema").SetInternal(err)
	}
	s, err := api.svc.UpdateRateSchema(ctx.Request().Context(), data.rates)
	if err != nil {
		return errors.Wrap(err, "updating score schema")
	}
	return ctx.JSON(http.StatusOK, s)
}
