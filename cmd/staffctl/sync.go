package main

import (
	"context"
	"errors"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <job-id> <question>...",
	Short: "Ask the job assistant a question",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		spinner, _ := pterm.DefaultSpinner.Start("Asking the assistant...")
		r, err := a.client.Ask(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			spinner.Fail("no answer")
			return explain(err)
		}
		spinner.Success()

		pterm.Println(r.Answer.Answer)
		if len(r.Answer.Steps) > 0 {
			items := make([]pterm.BulletListItem, 0, len(r.Answer.Steps))
			for _, s := range r.Answer.Steps {
				items = append(items, pterm.BulletListItem{Level: 0, Text: s})
			}
			_ = pterm.DefaultBulletList.WithItems(items).Render()
		}
		for _, w := range r.Answer.SafetyWarnings {
			pterm.Warning.Println(w)
		}
		if r.Answer.Escalate {
			pterm.Error.Println("Escalate this job to your supervisor")
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued offline actions now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.openQueue(cmd.Context()); err != nil {
			return err
		}
		if !a.monitor.Online() {
			return errors.New("server unreachable, actions stay queued")
		}
		// openQueue already replayed on the first successful probe; a second
		// pass retries whatever failed.
		res, err := a.queue.ReplayAll(cmd.Context(), a.client)
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			pterm.Warning.Printfln("%d action(s) failed, see \"staffctl queue\"", res.Failed)
		}
		return printQueue(cmd.Context(), a)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List locally queued actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.openQueue(cmd.Context()); err != nil {
			return err
		}
		return printQueue(cmd.Context(), a)
	},
}

func printQueue(ctx context.Context, a *app) error {
	all, err := a.queue.All(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		pterm.Info.Println("Queue is empty")
		return nil
	}
	data := pterm.TableData{{"Action", "Job", "Queued", "Synced", "Last error"}}
	for _, act := range all {
		synced := pterm.Yellow("pending")
		switch {
		case act.Synced:
			synced = pterm.Green("synced")
		case act.Refused:
			synced = pterm.Red("refused")
		}
		data = append(data, []string{string(act.Type), act.JobID, act.Timestamp.Local().Format("02 Jan 15:04:05"), synced, act.LastError})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
