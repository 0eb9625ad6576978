package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"diary/internal/model"
	"diary/internal/session"
	"diary/internal/stats"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	ctrl *session.Controller
	in   *bufio.Reader
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  student -phone PHONE [-role student|director] - sign in with a one-time code")
	fmt.Fprintln(cli.out, "  teacher -username USERNAME - sign in with a password, prompted next")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	studentCmd := flag.NewFlagSet("student", flag.ContinueOnError)
	studentCmd.SetOutput(cli.out)
	studentPhone := studentCmd.String("phone", "", "Phone number the code is sent to.")
	studentRole := studentCmd.String("role", string(model.RoleStudent), "student or director.")

	teacherCmd := flag.NewFlagSet("teacher", flag.ContinueOnError)
	teacherCmd.SetOutput(cli.out)
	teacherUname := teacherCmd.String("username", "", "The teacher's username. The password will be prompted next.")

	switch args[1] {
	case "student":
		if err := studentCmd.Parse(args[2:]); err != nil {
			return err
		}
		role, err := model.ParseRole(*studentRole)
		if *studentPhone == "" || err != nil || !role.UsesPhoneLogin() {
			studentCmd.Usage()
			return errHelp
		}
		return cli.phoneLogin(ctx, role, *studentPhone)
	case "teacher":
		if err := teacherCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *teacherUname == "" {
			teacherCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			teacherCmd.Usage()
			return errHelp
		}
		return cli.teacherLogin(ctx, *teacherUname, string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) phoneLogin(ctx context.Context, role model.Role, phone string) error {
	st, err := cli.ctrl.Start(ctx)
	if err != nil {
		return err
	}
	if _, err = cli.ctrl.SelectRole(ctx, st.ID, string(role)); err != nil {
		return err
	}
	if st, err = cli.ctrl.RequestCode(ctx, st.ID, phone); err != nil {
		return err
	}
	cli.notice(st)
	if st.DeliveredCode != "" {
		fmt.Fprintf(cli.out, "Your code: %s\n", st.DeliveredCode)
	}

	fmt.Fprint(cli.out, "Enter code:")
	code, err := cli.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && code != "") {
		return fmt.Errorf("read code: %w", err)
	}
	if st, err = cli.ctrl.SubmitCode(ctx, st.ID, strings.TrimSpace(code)); err != nil {
		return err
	}
	cli.welcome(st)
	if st.User.IsStudent() {
		printDashboard(cli.out, stats.Summarize(st.Book, *st.User))
	}
	return nil
}

func (cli *commandLine) teacherLogin(ctx context.Context, username, password string) error {
	st, err := cli.ctrl.Start(ctx)
	if err != nil {
		return err
	}
	if _, err = cli.ctrl.SelectRole(ctx, st.ID, string(model.RoleTeacher)); err != nil {
		return err
	}
	if st, err = cli.ctrl.Login(ctx, st.ID, username, password); err != nil {
		return err
	}
	cli.welcome(st)
	return nil
}

func (cli *commandLine) notice(st session.State) {
	if st.Notice != nil {
		fmt.Fprintln(cli.out, st.Notice.Message)
	}
}

func (cli *commandLine) welcome(st session.State) {
	fmt.Fprintf(cli.out, "\nSigned in as %s %s (%s)\n", st.User.AvatarEmoji, st.User.FullName, st.User.Role())
}

func printDashboard(w io.Writer, sum stats.Summary) {
	fmt.Fprintf(w, "\nOverall average: %s   Rank: %s\n\n", sum.OverallAverage, sum.Rank)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBJECT\tGRADES\tAVERAGE")
	for _, s := range sum.Subjects {
		grades := make([]string, len(s.Grades))
		for i, g := range s.Grades {
			grades[i] = fmt.Sprint(g)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, strings.Join(grades, " "), s.Average)
	}
	_ = tw.Flush()

	if sum.Distribution.Empty {
		fmt.Fprintln(w, "\nNo grades yet")
	} else {
		fmt.Fprintf(w, "\nFives: %d%%  Fours: %d%%  Threes and below: %d%%\n", sum.ExcellentPct, sum.GoodPct, sum.SatisfactoryPct)
	}

	if len(sum.Leaderboard) > 0 {
		fmt.Fprintln(w, "\nLeaderboard:")
		for _, e := range sum.Leaderboard {
			fmt.Fprintf(w, "  #%d %s %s %.2f\n", e.Rank, e.Avatar, e.Name, e.Score)
		}
	}
}
