package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/alama/apps/api/echo"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(args[0], cli.db, args[1:]...)
}

func (cli *commandLine) addUser(nu user.NewUser) error {
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "created %s %s <%s> (%s)\n", usr.Role, usr.FullName, usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.SetPassword(ctx, usr, pwd)
	return err
}

// token prints a bearer token for the user, after checking their password.
func (cli *commandLine) token(email, pwd string) error {
	usr, err := cli.usrSvc.Authenticate(context.Background(), email, pwd)
	if err != nil {
		return err
	}
	token, err := echoapi.GenerateToken(cli.conf, echoapi.GetUserClaims(cli.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	_, _ = fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) printRates() error {
	rs, err := cli.settingSvc.RateSchema(context.Background())
	if err != nil {
		return err
	}
	return cli.printJSON(rs)
}

func (cli *commandLine) setRates(candidate map[score.Bucket]float64) error {
	s, err := cli.settingSvc.UpdateRateSchema(context.Background(), candidate)
	if err != nil {
		return err
	}
	rs, err := s.Data.ScoreSchema()
	if err != nil {
		return err
	}
	return cli.printJSON(rs)
}

func (cli *commandLine) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}
	_, _ = fmt.Fprintln(cli.out, string(data))
	return nil
}
