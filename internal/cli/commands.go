package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"response-broker/internal/usecase"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
)

// errNoReply marks a run whose reply was the broker's failure reply.
var errNoReply = errors.New("no provider could answer")

func printReply(w io.Writer, out usecase.RespondOutput) error {
	if !out.Failed {
		fmt.Fprintln(w, out.Reply)
		return nil
	}
	fmt.Fprintln(w, errorStyle.Render(out.Reply))
	if out.Failure != nil {
		reasons := out.Failure.Reasons()
		names := make([]string, 0, len(reasons))
		for name := range reasons {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %s\n", name, reasons[name])
		}
		return fmt.Errorf("%w (%s)", errNoReply, out.Failure.Kind())
	}
	return errNoReply
}

func newAskCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message...>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.closing(func(cmd *cobra.Command, args []string) error {
			out, err := a.ctr.Broker.Respond(cmd.Context(), usecase.RespondInput{
				Channel: a.channel,
				Message: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), out)
		}),
	}
}

func newChatCommand(a *app, stdin io.Reader) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation on one channel (exit with /quit or EOF)",
		Args:  cobra.NoArgs,
		RunE: a.closing(func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			scanner := bufio.NewScanner(stdin)
			for {
				fmt.Fprint(w, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(w)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				}
				out, err := a.ctr.Broker.Respond(cmd.Context(), usecase.RespondInput{Channel: a.channel, Message: line})
				if err != nil {
					return err
				}
				// A failed turn is shown but does not end the session.
				_ = printReply(w, out)
			}
		}),
	}
}

func newHeartbeatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Probe every configured provider directly",
		Args:  cobra.NoArgs,
		RunE: a.closing(func(cmd *cobra.Command, _ []string) error {
			report := a.ctr.Jobs.Heartbeat(cmd.Context())
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, headerStyle.Render("Heartbeat "+report.At.Format("2006-01-02 15:04:05")))
			for _, res := range report.Results {
				if res.OK {
					fmt.Fprintf(w, "%s: %s\n", res.Provider, okStyle.Render("OK"))
					continue
				}
				fmt.Fprintf(w, "%s: %s %v\n", res.Provider, errorStyle.Render("ERROR"), res.Err)
			}
			if !report.Healthy() {
				return errors.New("one or more providers are unhealthy")
			}
			return nil
		}),
	}
}

func newReflectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reflect",
		Short: "Reflect on today's exchanges",
		Args:  cobra.NoArgs,
		RunE: a.closing(func(cmd *cobra.Command, _ []string) error {
			out, err := a.ctr.Jobs.Reflect(cmd.Context())
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), out)
		}),
	}
}

func newInsightCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "insight",
		Short: "Generate an insight on the insight channel",
		Args:  cobra.NoArgs,
		RunE: a.closing(func(cmd *cobra.Command, _ []string) error {
			out, err := a.ctr.Jobs.Insight(cmd.Context())
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), out)
		}),
	}
}

func newProvidersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show the fallback order, usage and limits",
		Args:  cobra.NoArgs,
		RunE: a.closing(func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			usage := a.ctr.Sequencer.Usage()
			order := a.ctr.Sequencer.Snapshot()

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tPROVIDER\tUSED\tLIMIT")
			for i, name := range order {
				limit := "-"
				if l, ok := a.ctr.Quota.Limit(name); ok {
					limit = fmt.Sprint(l)
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, name, usage[name], limit)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(order) == 0 {
				fmt.Fprintln(w, errorStyle.Render("no providers configured"))
			}
			fmt.Fprintf(w, "cached replies: %d\n", a.ctr.Sequencer.Cache().Len())
			return nil
		}),
	}
}
