package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"campusportal/internal/auth"
	"campusportal/internal/model"
	"campusportal/internal/profile"
	"campusportal/internal/report"
	"campusportal/internal/views"
)

var errHelp = errors.New("help provided")

type backend interface {
	profile.Store
	views.AttendanceSource
	views.FeeSource
	FindByID(ctx context.Context, role model.Role, id string) (model.Profile, error)
}

type commandLine struct {
	out     io.Writer
	store   backend
	cache   *profile.Cache
	views   *views.Service
	migrate func(ctx context.Context) error
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate                                              - apply the database schema")
	fmt.Fprintln(cli.out, "  profile -auth-id ID -email EMAIL [-role ROLE] [-refresh] - resolve a session to its profile")
	fmt.Fprintln(cli.out, "  attendance -student ID [-xlsx FILE]                  - aggregate a student's attendance")
	fmt.Fprintln(cli.out, "  fees -student ID                                     - reconcile a student's fees")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	profileCmd := flag.NewFlagSet("profile", flag.ContinueOnError)
	profileCmd.SetOutput(cli.out)
	authID := profileCmd.String("auth-id", "", "Authenticated identity to resolve.")
	email := profileCmd.String("email", "", "Email carried by the session, used when no profile is linked yet.")
	role := profileCmd.String("role", "student", "Claimed role: student, faculty or admin. Empty searches both profile tables.")
	refresh := profileCmd.Bool("refresh", false, "Bypass the profile cache.")

	attendanceCmd := flag.NewFlagSet("attendance", flag.ContinueOnError)
	attendanceCmd.SetOutput(cli.out)
	attendanceStudent := attendanceCmd.String("student", "", "Student profile ID.")
	xlsxPath := attendanceCmd.String("xlsx", "", "Write an XLSX report to this file instead of printing JSON.")

	feesCmd := flag.NewFlagSet("fees", flag.ContinueOnError)
	feesCmd.SetOutput(cli.out)
	feesStudent := feesCmd.String("student", "", "Student profile ID.")

	switch args[1] {
	case "migrate":
		if cli.migrate == nil {
			return errors.New("migrate requires STORE=postgres")
		}
		if err := cli.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "schema applied")
		return nil
	case "profile":
		if err := profileCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *authID == "" {
			profileCmd.Usage()
			return errHelp
		}
		return cli.resolveProfile(ctx, *authID, *email, model.Role(strings.ToLower(*role)), *refresh)
	case "attendance":
		if err := attendanceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *attendanceStudent == "" {
			attendanceCmd.Usage()
			return errHelp
		}
		return cli.attendance(ctx, *attendanceStudent, *xlsxPath)
	case "fees":
		if err := feesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *feesStudent == "" {
			feesCmd.Usage()
			return errHelp
		}
		summary, err := cli.views.Fees(ctx, *feesStudent)
		if err != nil {
			return err
		}
		return cli.printJSON(summary)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) resolveProfile(ctx context.Context, authID, email string, role model.Role, refresh bool) error {
	holder := &auth.Holder{}
	holder.SignIn(auth.Session{Identity: model.Identity{AuthID: authID, Email: email}, Role: role})
	resolver := profile.NewResolver(cli.store, cli.cache, holder, nil)
	p, err := resolver.Resolve(ctx, refresh)
	if err != nil {
		return err
	}
	return cli.printJSON(p)
}

func (cli *commandLine) attendance(ctx context.Context, studentID, xlsxPath string) error {
	stats, err := cli.views.Attendance(ctx, studentID)
	if err != nil {
		return err
	}
	if xlsxPath == "" {
		return cli.printJSON(stats)
	}
	student, err := cli.store.FindByID(ctx, model.RoleStudent, studentID)
	if err != nil {
		return err
	}
	file, err := os.Create(xlsxPath)
	if err != nil {
		return err
	}
	if err := report.WriteAttendance(file, student, stats); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "report written to %s\n", xlsxPath)
	return nil
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
