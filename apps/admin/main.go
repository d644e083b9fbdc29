package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/setting"
	"github.com/trezcool/alama/core/user"
	logsvc "github.com/trezcool/alama/services/logger"
	"github.com/trezcool/alama/storage/database"
	sqlxrepos "github.com/trezcool/alama/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewLogger("ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Ping(ctx, db); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	// set up services
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	cli := commandLine{
		conf:       conf,
		db:         db,
		usrSvc:     user.NewService(sqlxrepos.NewUserRepository(db), validate),
		settingSvc: setting.NewService(sqlxrepos.NewSettingRepository(db), conf),
		out:        os.Stdout,
	}

	// start CLI
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			if errs, ok := err.(validator.ValidationErrors); ok {
				for fld, msg := range core.TranslateErrors(errs, translator) {
					logger.Error(fmt.Sprintf("%s: %s", fld, msg))
				}
			} else {
				logger.Error(fmt.Sprintf("error: %v", err))
			}
		}
		os.Exit(1)
	}
}
