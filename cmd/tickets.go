package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/application"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/config"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/logger"
)

var operatorFlag string

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Operator desk: list, lock and answer tickets from the command line",
}

var ticketsOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "List PENDING tickets, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTicketsOpen,
}

var ticketsLockCmd = &cobra.Command{
	Use:   "lock <code>",
	Short: "Claim a ticket for --operator",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketsLock,
}

var ticketsReplyCmd = &cobra.Command{
	Use:   "reply <code> <text...>",
	Short: "Send the answer to the requester and close the ticket (needs TELEGRAM_BOT_TOKEN)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTicketsReply,
}

func init() {
	for _, c := range []*cobra.Command{ticketsLockCmd, ticketsReplyCmd} {
		c.Flags().StringVar(&operatorFlag, "operator", "", "operator id (Telegram user id)")
		_ = c.MarkFlagRequired("operator")
	}
	ticketsCmd.AddCommand(ticketsOpenCmd, ticketsLockCmd, ticketsReplyCmd)
}

func openDesk() (*application.Desk, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	desk, err := application.NewDesk(cfg, logger.Init(cfg.LogLevel, cfg.LogFormat))
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	return desk, ctx, cancel, nil
}

func runTicketsOpen(cmd *cobra.Command, args []string) error {
	desk, ctx, cancel, err := openDesk()
	if err != nil {
		return err
	}
	defer cancel()
	defer desk.Close()

	tickets, err := desk.ListOpen(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tCREATED\tALIAS\tAGE\tZONE\tQUESTION")
	for _, t := range tickets {
		q := strings.ReplaceAll(t.Question, "\n", " ")
		if r := []rune(q); len(r) > 60 {
			q = string(r[:57]) + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", t.Code, t.CreatedAt, t.Alias, t.Age, t.Zone, q)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d open ticket(s)\n", len(tickets))
	return nil
}

func runTicketsLock(cmd *cobra.Command, args []string) error {
	desk, ctx, cancel, err := openDesk()
	if err != nil {
		return err
	}
	defer cancel()
	defer desk.Close()

	res, err := desk.Lock(ctx, args[0], operatorFlag)
	if err != nil {
		return err
	}
	if res.AlreadyOwned {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already yours\n", res.Ticket.Code)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s locked by %s\n", res.Ticket.Code, res.Ticket.LockedBy)
	return nil
}

func runTicketsReply(cmd *cobra.Command, args []string) error {
	desk, ctx, cancel, err := openDesk()
	if err != nil {
		return err
	}
	defer cancel()
	defer desk.Close()

	t, err := desk.Reply(ctx, args[0], operatorFlag, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s replied\n", t.Code)
	return nil
}
