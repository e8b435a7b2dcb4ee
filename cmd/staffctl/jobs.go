package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/garnizeh/fieldops/internal/geo"
	"github.com/garnizeh/fieldops/internal/offline"
	"github.com/garnizeh/fieldops/pkg/client"
	"github.com/garnizeh/fieldops/pkg/models"
)

var (
	signinCode string
	signinPIN  string

	listStatus string

	locLat   float64
	locLon   float64
	locAcc   float64
	locError string

	acceptAck      []string
	acceptOverride bool
	rejectReason   string
	reqNotDone     bool
)

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with staff code and PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		s, err := a.client.SigninPIN(cmd.Context(), signinCode, signinPIN)
		if err != nil {
			return err
		}
		if err := saveSession(s); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
		pterm.Success.Printfln("Signed in as %s (session %s, expires %s)", s.Name, s.SessionID, s.ExpiresAt.Local().Format(time.RFC822))
		return nil
	},
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "End the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		if a.session != nil {
			if err := a.client.Signout(cmd.Context()); err != nil {
				pterm.Warning.Printfln("server signout failed: %v", err)
			}
		}
		if err := clearSession(); err != nil {
			return err
		}
		pterm.Success.Println("Signed out")
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List, show and watch assigned jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs assigned to you",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		jobs, err := a.client.ListJobs(cmd.Context(), models.JobStatus(listStatus))
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			pterm.Info.Println("No jobs")
			return nil
		}
		data := pterm.TableData{{"ID", "Title", "Status", "Priority", "Address", "Scheduled"}}
		for _, j := range jobs {
			sched := ""
			if j.ScheduledFor != nil {
				sched = j.ScheduledFor.Local().Format("Mon 02 Jan 15:04")
			}
			data = append(data, []string{j.ID, j.Title, statusLabel(j.Status), string(j.Priority), j.Location.Address, sched})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job with its requirements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		j, err := a.client.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJob(j)
		return nil
	},
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch [job-id]",
	Short: "Stream job changes as they are committed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		jobID := ""
		if len(args) == 1 {
			jobID = args[0]
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pterm.Info.Println("Watching for job changes (Ctrl+C to stop)")
		err = a.client.Watch(ctx, jobID, func(j models.Job) {
			pterm.Printfln("%s  %s  %s  %s", time.Now().Format("15:04:05"), j.ID, statusLabel(j.Status), j.Title)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <job-id>",
	Short: "Accept an assigned job (queued when offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.openQueue(cmd.Context()); err != nil {
			return err
		}
		loc := location(cmd)
		out, err := a.dispatcher.Accept(cmd.Context(), args[0], a.session.StaffID, offline.AcceptData{
			Acknowledged: acceptAck,
			Override:     acceptOverride,
			Fix:          loc.Fix,
		})
		if err != nil {
			return explain(err)
		}
		reportOutcome("accepted", out)
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <job-id>",
	Short: "Reject an assigned job with a reason (queued when offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(rejectReason) == "" {
			return errors.New("a reason is required, pass --reason")
		}
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.openQueue(cmd.Context()); err != nil {
			return err
		}
		out, err := a.dispatcher.Reject(cmd.Context(), args[0], a.session.StaffID, offline.RejectData{Reason: rejectReason})
		if err != nil {
			return explain(err)
		}
		reportOutcome("rejected", out)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <job-id>",
	Short: "Start an accepted job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		j, err := a.client.Start(cmd.Context(), args[0], location(cmd))
		if err != nil {
			return explain(err)
		}
		pterm.Success.Printfln("Job %s is %s", j.ID, statusLabel(j.Status))
		return nil
	},
}

var requirementCmd = &cobra.Command{
	Use:   "requirement <job-id> <requirement-id>",
	Short: "Mark a requirement done (or not done with --undo)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		j, err := a.client.SetRequirement(cmd.Context(), args[0], args[1], !reqNotDone)
		if err != nil {
			return explain(err)
		}
		printRequirements(j.Requirements)
		return nil
	},
}

func init() {
	signinCmd.Flags().StringVar(&signinCode, "code", "", "staff code")
	signinCmd.Flags().StringVar(&signinPIN, "pin", "", "PIN")
	_ = signinCmd.MarkFlagRequired("code")
	_ = signinCmd.MarkFlagRequired("pin")

	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "only jobs with this status")
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsWatchCmd)

	for _, c := range []*cobra.Command{acceptCmd, startCmd, wizardCompleteCmd} {
		addLocationFlags(c)
	}
	acceptCmd.Flags().StringSliceVar(&acceptAck, "ack", nil, "requirement ids acknowledged")
	acceptCmd.Flags().BoolVar(&acceptOverride, "override", false, "accept despite unacknowledged requirements")
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the job is rejected")
	requirementCmd.Flags().BoolVar(&reqNotDone, "undo", false, "mark the requirement as not done")
}

func addLocationFlags(c *cobra.Command) {
	c.Flags().Float64Var(&locLat, "lat", 0, "current latitude")
	c.Flags().Float64Var(&locLon, "lon", 0, "current longitude")
	c.Flags().Float64Var(&locAcc, "accuracy", 0, "fix accuracy in meters")
	c.Flags().StringVar(&locError, "location-error", "", "report a location failure instead (permission_denied, timeout, stale, unavailable)")
}

// location builds the device location answer from the flags. No flags means
// no fix was available.
func location(cmd *cobra.Command) client.Location {
	if locError != "" {
		return client.Location{Error: geo.ErrorCode(geo.ParseError(locError))}
	}
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return client.Location{}
	}
	return client.Location{Fix: &models.Fix{
		Latitude:       locLat,
		Longitude:      locLon,
		AccuracyMeters: locAcc,
		CapturedAt:     time.Now().UTC(),
	}}
}

func reportOutcome(verb string, out offline.Outcome) {
	if out.Queued {
		pterm.Warning.Printfln("Server unreachable: job %s will be %s when back online (action %s)", out.Action.JobID, verb, out.Action.ID)
		return
	}
	pterm.Success.Printfln("Job %s %s", out.Action.JobID, verb)
}

// explain turns server validation answers into readable messages.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if len(apiErr.Missing) > 0 {
		items := make([]pterm.BulletListItem, 0, len(apiErr.Missing))
		for _, m := range apiErr.Missing {
			items = append(items, pterm.BulletListItem{Level: 0, Text: m})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}
	if apiErr.DistanceMeters != nil && apiErr.RadiusMeters != nil {
		return fmt.Errorf("you are %.0fm from the job site, must be within %.0fm", *apiErr.DistanceMeters, *apiErr.RadiusMeters)
	}
	switch geo.ParseError(apiErr.LocationError) {
	case geo.ErrStale:
		return errors.New("your location fix is too old, take a new one with --lat/--lon")
	case geo.ErrPermissionDenied:
		return errors.New("location permission is needed to verify you are on site")
	}
	return errors.New(apiErr.Message)
}

func statusLabel(s models.JobStatus) string {
	switch s {
	case models.StatusAssigned:
		return pterm.LightBlue(string(s))
	case models.StatusAccepted:
		return pterm.Cyan(string(s))
	case models.StatusInProgress:
		return pterm.Yellow(string(s))
	case models.StatusCompleted:
		return pterm.Green(string(s))
	case models.StatusRejected:
		return pterm.Red(string(s))
	}
	return string(s)
}

func printJob(j *models.Job) {
	pterm.DefaultSection.Println(j.Title)
	rows := [][]string{
		{"ID", j.ID},
		{"Status", statusLabel(j.Status)},
		{"Priority", string(j.Priority)},
		{"Address", j.Location.Address},
	}
	if c := j.Location.Coordinates; c != nil {
		rows = append(rows, []string{"Coordinates", strconv.FormatFloat(c.Latitude, 'f', 5, 64) + ", " + strconv.FormatFloat(c.Longitude, 'f', 5, 64)})
	}
	if b := j.BookingDetails; b != nil {
		rows = append(rows, []string{"Customer", b.CustomerName}, []string{"Access", b.AccessInstructions})
	}
	if j.RejectionReason != "" {
		rows = append(rows, []string{"Rejected", j.RejectionReason})
	}
	_ = pterm.DefaultTable.WithData(rows).Render()
	if j.Description != "" {
		pterm.Println(j.Description)
	}
	printRequirements(j.Requirements)
}

func printRequirements(reqs []models.Requirement) {
	if len(reqs) == 0 {
		return
	}
	items := make([]pterm.BulletListItem, 0, len(reqs))
	for _, r := range reqs {
		mark := "[ ]"
		if r.IsCompleted {
			mark = "[x]"
		}
		text := fmt.Sprintf("%s %s (%s)", mark, r.Description, r.ID)
		if r.IsRequired {
			text += " *"
		}
		items = append(items, pterm.BulletListItem{Level: 0, Text: text})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()
}
