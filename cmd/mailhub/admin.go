package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mixelka/mailhub/pkg/models"
)

var accountCmd = &cobra.Command{Use: "account", Short: "Manage mail accounts"}

var accountFlags struct {
	name, email, clientID, clientSecret, refreshToken string
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an account",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		f := accountFlags
		req, err := models.NewAccountRequest(f.name, f.email, f.clientID, f.clientSecret, f.refreshToken)
		if err != nil {
			return err
		}
		acc, err := a.db.CreateAccount(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("account %d created\n", acc.ID)
		return nil
	}),
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		accounts, err := a.db.ListAccounts(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tENABLED\tTOKEN EXPIRES")
		for _, acc := range accounts {
			expiry := "-"
			if acc.ExpiresAt > 0 {
				expiry = acc.TokenExpiry().In(a.cfg.Location()).Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", acc.ID, acc.Name, acc.Email, acc.Enabled, expiry)
		}
		return w.Flush()
	}),
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Edit an account, changing only the given flags",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountUpdate,
}

func runAccountUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	u, err := models.NewAccountUpdate(accountUpdateFromFlags(cmd.Flags()))
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app, _ []string) error {
		acc, err := a.db.UpdateAccount(ctx, id, u)
		if err != nil {
			return err
		}
		fmt.Printf("account %d updated\n", acc.ID)
		return nil
	})(cmd, args)
}

// accountUpdateFromFlags keeps only the flags set on the command line
func accountUpdateFromFlags(flags *pflag.FlagSet) models.AccountUpdate {
	var u models.AccountUpdate
	pick := func(name string, dst **string) {
		if flags.Changed(name) {
			v, _ := flags.GetString(name)
			*dst = &v
		}
	}
	pick("name", &u.Name)
	pick("email", &u.Email)
	pick("client-id", &u.ClientID)
	pick("client-secret", &u.ClientSecret)
	pick("refresh-token", &u.RefreshToken)
	return u
}

var accountEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Enable an account",
	Args:  cobra.ExactArgs(1),
	RunE:  setAccountEnabled(true),
}

var accountDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Disable an account",
	Args:  cobra.ExactArgs(1),
	RunE:  setAccountEnabled(false),
}

func setAccountEnabled(enabled bool) func(*cobra.Command, []string) error {
	return withApp(func(ctx context.Context, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.db.SetAccountEnabled(ctx, id, enabled)
	})
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an account with its tasks and rules",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.db.DeleteAccount(ctx, id)
	}),
}

var taskCmd = &cobra.Command{Use: "task", Short: "Manage scheduled send tasks"}

var taskFlags struct {
	accountID int64
	to        string
	subject   string
	content   string
	delay     string
	loop      bool
	baseDate  string
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a send task",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		f := taskFlags
		in := models.TaskInput{
			AccountID:   f.accountID,
			To:          f.to,
			Subject:     f.subject,
			Content:     f.content,
			DelayConfig: f.delay,
			Loop:        f.loop,
		}
		if f.baseDate != "" {
			base, err := time.ParseInLocation(time.DateTime, f.baseDate, a.cfg.Location())
			if err != nil {
				return fmt.Errorf("invalid --base-date: %w", err)
			}
			in.BaseDate = base
		}
		req, err := models.NewTaskRequest(in, time.Now())
		if err != nil {
			return err
		}
		if _, err := a.db.GetAccountByID(ctx, req.AccountID); err != nil {
			return fmt.Errorf("account %d: %w", req.AccountID, err)
		}
		task, err := a.db.CreateTask(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("task %d scheduled for %s\n", task.ID, task.NextRun().In(a.cfg.Location()).Format(time.DateTime))
		return nil
	}),
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List send tasks",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		tasks, err := a.db.ListTasks(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACCOUNT\tTO\tLOOP\tSTATUS\tNEXT RUN\tOK\tFAIL\tLAST ERROR")
		for _, t := range tasks {
			fmt.Fprintf(w, "%d\t%d\t%s\t%t\t%s\t%s\t%d\t%d\t%s\n",
				t.ID, t.AccountID, t.ToEmail, t.IsLoop, t.Status,
				t.NextRun().In(a.cfg.Location()).Format(time.DateTime),
				t.SuccessCount, t.FailCount, t.LastError)
		}
		return w.Flush()
	}),
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a send task",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.db.DeleteTask(ctx, id)
	}),
}

var ruleCmd = &cobra.Command{Use: "rule", Short: "Manage public share rules"}

var ruleFlags struct {
	name, alias, code, limit string
	validDays                int
	sender, receiver, body   string
	groupID                  int64
}

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a share rule",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		f := ruleFlags
		in := models.RuleInput{
			Name:          f.name,
			Alias:         f.alias,
			QueryCode:     f.code,
			FetchLimit:    f.limit,
			ValidDays:     f.validDays,
			MatchSender:   f.sender,
			MatchReceiver: f.receiver,
			MatchBody:     f.body,
		}
		if f.groupID > 0 {
			in.GroupID = &f.groupID
		}
		req, err := models.NewRuleRequest(in, time.Now())
		if err != nil {
			return err
		}
		rule, err := a.db.CreateRule(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("rule %d created with code %s\n", rule.ID, rule.QueryCode)
		return nil
	}),
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List share rules",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		rules, err := a.db.ListRules(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCODE\tNAME\tALIAS\tLIMIT\tVALID UNTIL\tGROUP")
		for _, r := range rules {
			until, group := "permanent", "-"
			if r.ValidUntil != nil {
				until = time.UnixMilli(*r.ValidUntil).In(a.cfg.Location()).Format(time.DateTime)
			}
			if r.GroupID != nil {
				group = strconv.FormatInt(*r.GroupID, 10)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.QueryCode, r.Name, r.Alias, r.FetchLimit, until, group)
		}
		return w.Flush()
	}),
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete share rules",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := parseID(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return a.db.DeleteRules(ctx, ids)
	}),
}

var groupCmd = &cobra.Command{Use: "group", Short: "Manage filter groups"}

var groupFlags struct {
	name, sender, receiver, body string
}

var groupAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a filter group",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		f := groupFlags
		req, err := models.NewGroupRequest(f.name, f.sender, f.receiver, f.body)
		if err != nil {
			return err
		}
		group, err := a.db.CreateGroup(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("group %d created\n", group.ID)
		return nil
	}),
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a filter group, detaching its rules",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.db.DeleteGroup(ctx, id)
	}),
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	af := accountAddCmd.Flags()
	af.StringVar(&accountFlags.name, "name", "", "Account name (required)")
	af.StringVar(&accountFlags.email, "email", "", "Mailbox address")
	af.StringVar(&accountFlags.clientID, "client-id", "", "OAuth2 client ID (required)")
	af.StringVar(&accountFlags.clientSecret, "client-secret", "", "OAuth2 client secret (required)")
	af.StringVar(&accountFlags.refreshToken, "refresh-token", "", "OAuth2 refresh token (required)")
	accountAddCmd.MarkFlagRequired("name")

	uf := accountUpdateCmd.Flags()
	uf.String("name", "", "New account name")
	uf.String("email", "", "New mailbox address, empty to clear")
	uf.String("client-id", "", "New OAuth2 client ID")
	uf.String("client-secret", "", "New OAuth2 client secret")
	uf.String("refresh-token", "", "New OAuth2 refresh token")
	accountCmd.AddCommand(accountAddCmd, accountUpdateCmd, accountListCmd, accountEnableCmd, accountDisableCmd, accountDeleteCmd)

	tf := taskAddCmd.Flags()
	tf.Int64Var(&taskFlags.accountID, "account", 0, "Account ID (required)")
	tf.StringVar(&taskFlags.to, "to", "", "Recipient address (required)")
	tf.StringVar(&taskFlags.subject, "subject", "", "Subject")
	tf.StringVar(&taskFlags.content, "content", "", "HTML body")
	tf.StringVar(&taskFlags.delay, "delay", "", "Loop delay as d|h|m|s, each part N or min-max")
	tf.BoolVar(&taskFlags.loop, "loop", false, "Reschedule after every successful send")
	tf.StringVar(&taskFlags.baseDate, "base-date", "", "First run in display timezone, "+time.DateTime)
	taskAddCmd.MarkFlagRequired("account")
	taskAddCmd.MarkFlagRequired("to")
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDeleteCmd)

	rf := ruleAddCmd.Flags()
	rf.StringVar(&ruleFlags.name, "name", "", "Bound account name or email fragment (required)")
	rf.StringVar(&ruleFlags.alias, "alias", "", "Display alias")
	rf.StringVar(&ruleFlags.code, "code", "", "Share code, generated when empty")
	rf.StringVar(&ruleFlags.limit, "limit", "", "Fetch limit as N or fetch-display")
	rf.IntVar(&ruleFlags.validDays, "valid-days", 0, "Days until expiry, 0 for permanent")
	rf.StringVar(&ruleFlags.sender, "match-sender", "", "Sender substring")
	rf.StringVar(&ruleFlags.receiver, "match-receiver", "", "Receiver substring")
	rf.StringVar(&ruleFlags.body, "match-body", "", "Body keywords separated by |")
	rf.Int64Var(&ruleFlags.groupID, "group", 0, "Filter group ID")
	ruleAddCmd.MarkFlagRequired("name")
	ruleCmd.AddCommand(ruleAddCmd, ruleListCmd, ruleDeleteCmd)

	gf := groupAddCmd.Flags()
	gf.StringVar(&groupFlags.name, "name", "", "Group name (required)")
	gf.StringVar(&groupFlags.sender, "match-sender", "", "Sender substring")
	gf.StringVar(&groupFlags.receiver, "match-receiver", "", "Receiver substring")
	gf.StringVar(&groupFlags.body, "match-body", "", "Body keywords separated by |")
	groupAddCmd.MarkFlagRequired("name")
	groupCmd.AddCommand(groupAddCmd, groupDeleteCmd)

	rootCmd.AddCommand(accountCmd, taskCmd, ruleCmd, groupCmd)
}
