package di

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/alama/apps/api/echo"
	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
	"github.com/trezcool/alama/core/user"
	emailsvc "github.com/trezcool/alama/services/email"
	logsvc "github.com/trezcool/alama/services/logger"
	"github.com/trezcool/alama/storage/database"
	sqlxrepos "github.com/trezcool/alama/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewLogger("API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewLogger("DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}
		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	score.InitValidators(validate, translator)
	return validate
}

func newServices(
	usrSvc *user.Service,
	courseSvc *course.Service,
	scoreSvc *score.Service,
	settingSvc *setting.Service,
) echoapi.Services {
	return echoapi.Services{
		Users:    usrSvc,
		Courses:  courseSvc,
		Scores:   scoreSvc,
		Settings: settingSvc,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewClassSubjectRepository, dig.As(new(course.Repository))))
	must(c.Provide(sqlxrepos.NewRecordRepository, dig.As(new(score.Repository))))
	must(c.Provide(sqlxrepos.NewSettingRepository, dig.As(new(setting.Repository))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(func(svc *user.Service) course.TeacherFinder { return svc }))
	must(c.Provide(func(svc *user.Service) score.UserFinder { return svc }))
	must(c.Provide(course.NewService))
	must(c.Provide(func(svc *course.Service) score.ClassSubjectFinder { return svc }))
	must(c.Provide(setting.NewService))
	must(c.Provide(func(svc *setting.Service) score.RateSchemaSource { return svc }))
	must(c.Provide(score.NewService))

	must(c.Provide(newServices))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
