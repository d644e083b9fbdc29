package testutil

import (
	"testing"

	echoapi "github.com/trezcool/alama/apps/api/echo"
	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
	"github.com/trezcool/alama/core/user"
	emailsvc "github.com/trezcool/alama/services/email"
	logsvc "github.com/trezcool/alama/services/logger"
	inmemdb "github.com/trezcool/alama/storage/database/inmem"
)

// App is an API server backed by an in-memory database.
type App struct {
	Server   *echoapi.Server
	Conf     *core.Config
	Services echoapi.Services
	MailSvc  *emailsvc.ConsoleServiceMock

	UsrRepo user.Repository
	CSRepo  course.Repository
	RecRepo score.Repository
}

func NewApp(t *testing.T) *App {
	t.Helper()
	conf := NewConfig()
	logger := logsvc.NewDiscardLogger()
	validate, translator := NewValidator()

	db := inmemdb.Open()
	app := &App{
		Conf:    conf,
		MailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		UsrRepo: inmemdb.NewUserRepository(db),
		CSRepo:  inmemdb.NewClassSubjectRepository(db),
		RecRepo: inmemdb.NewRecordRepository(db),
	}

	usrSvc := user.NewService(app.UsrRepo, validate)
	csSvc := course.NewService(app.CSRepo, usrSvc, validate)
	settingSvc := setting.NewService(inmemdb.NewSettingRepository(db), conf)
	app.Services = echoapi.Services{
		Users:    usrSvc,
		Courses:  csSvc,
		Scores:   score.NewService(app.RecRepo, settingSvc, csSvc, usrSvc, app.MailSvc, logger, validate),
		Settings: settingSvc,
	}
	app.Server = echoapi.NewServer(conf, logger, validate, translator, app.Services)
	t.Cleanup(func() { _ = app.Server.Close() })
	return app
}

// Token returns a bearer token for usr.
func (app *App) Token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.Conf, echoapi.GetUserClaims(app.Conf, usr))
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return token
}
