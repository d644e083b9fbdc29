package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
	"github.com/trezcool/alama/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	usrSvc     *user.Service
	settingSvc *setting.Service
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                  - run a goose migration command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser -name NAME -code CODE -email EMAIL -role ROLE   - create a user")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                              - reset a user's password")
	_, _ = fmt.Fprintln(cli.out, "  token -email EMAIL                                      - print a bearer token for a user")
	_, _ = fmt.Fprintln(cli.out, "  rates [-15min N -lession N -middle N -final N]          - print or update the score rate schema")
}

func (cli *commandLine) readPassword(prompt string) (string, error) {
	_, _ = fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserCode := addUserCmd.String("code", "", "The user's code.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "The user's role: ADMIN, TEACHER or STUDENT.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenEmail := tokenCmd.String("email", "", "The user's email. The password will be prompted next.")

	ratesCmd := flag.NewFlagSet("rates", flag.ContinueOnError)
	rates := map[score.Bucket]*float64{
		score.BucketShortQuiz: ratesCmd.Float64("15min", 0, "Rate of the 15 minutes tests."),
		score.BucketInClass:   ratesCmd.Float64("lession", 0, "Rate of the in-class exercises."),
		score.BucketMidterm:   ratesCmd.Float64("middle", 0, "Rate of the midterm exam."),
		score.BucketFinal:     ratesCmd.Float64("final", 0, "Rate of the final exam."),
	}

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, tokenCmd, ratesCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserCode == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(user.NewUser{
			FullName:        *addUserName,
			Code:            *addUserCode,
			Email:           *addUserEmail,
			Role:            *addUserRole,
			Password:        pwd,
			PasswordConfirm: pwd,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenEmail == "" {
			tokenCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword("Enter password:")
		if err != nil {
			return err
		}
		return cli.token(*tokenEmail, pwd)

	case "rates":
		if err := ratesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if ratesCmd.NFlag() == 0 {
			return cli.printRates()
		}
		candidate := make(map[score.Bucket]float64, len(rates))
		for b, val := range rates {
			candidate[b] = *val
		}
		return cli.setRates(candidate)

	default:
		cli.printUsage()
		return errHelp
	}
}
