package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/garnizeh/fieldops/pkg/client"
	"github.com/garnizeh/fieldops/pkg/models"
)

var (
	photoType string
	uncheck   bool
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Step through the completion wizard of an in-progress job",
	Long: `The completion wizard walks through requirements, photos, a quality
check, notes and a final confirmation. Each step must be satisfied before
"next" moves on; "complete" is only accepted from the confirm step.`,
}

var wizardOpenCmd = &cobra.Command{
	Use:   "open <job-id>",
	Short: "Open (or resume) the wizard",
	Args:  cobra.ExactArgs(1),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.Wizard(cmd.Context(), args[0], true)
	}),
}

var wizardShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the current wizard step",
	Args:  cobra.ExactArgs(1),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.Wizard(cmd.Context(), args[0], false)
	}),
}

var wizardNextCmd = &cobra.Command{
	Use:   "next <job-id>",
	Short: "Move to the next step",
	Args:  cobra.ExactArgs(1),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.WizardAction(cmd.Context(), args[0], http.MethodPost, "next", nil)
	}),
}

var wizardBackCmd = &cobra.Command{
	Use:   "back <job-id>",
	Short: "Go back one step",
	Args:  cobra.ExactArgs(1),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.WizardAction(cmd.Context(), args[0], http.MethodPost, "back", nil)
	}),
}

var wizardReqCmd = &cobra.Command{
	Use:   "requirement <job-id> <requirement-id>",
	Short: "Tick a requirement in the wizard",
	Args:  cobra.ExactArgs(2),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.WizardAction(cmd.Context(), args[0], http.MethodPut, "requirements/"+args[1], map[string]bool{"is_completed": !uncheck})
	}),
}

var wizardCheckCmd = &cobra.Command{
	Use:   "check <job-id> <item-id>",
	Short: "Tick a photo checklist item",
	Args:  cobra.ExactArgs(2),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.WizardAction(cmd.Context(), args[0], http.MethodPut, "photo-checklist/"+args[1], map[string]bool{"checked": !uncheck})
	}),
}

var wizardQualityCmd = &cobra.Command{
	Use:   "quality <job-id> <item-id>",
	Short: "Tick a quality check item",
	Args:  cobra.ExactArgs(2),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.WizardAction(cmd.Context(), args[0], http.MethodPut, "quality/"+args[1], map[string]bool{"checked": !uncheck})
	}),
}

var wizardNotesCmd = &cobra.Command{
	Use:   "notes <job-id> <text>...",
	Short: "Set the completion notes",
	Args:  cobra.MinimumNArgs(2),
	RunE: wizardRun(func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error) {
		return c.WizardAction(cmd.Context(), args[0], http.MethodPut, "notes", map[string]string{"notes": strings.Join(args[1:], " ")})
	}),
}

var wizardPhotoCmd = &cobra.Command{
	Use:   "photo <job-id> <file>",
	Short: "Attach a photo (--type before|during|after|issue)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := models.PhotoType(photoType)
		if !typ.Valid() {
			return fmt.Errorf("unknown photo type %q", photoType)
		}
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(args[1])))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		p, err := a.client.UploadPhoto(cmd.Context(), args[0], typ, args[1], contentType, f)
		if err != nil {
			return explain(err)
		}
		pterm.Success.Printfln("Attached %s photo %s", p.Type, p.ID)
		return nil
	},
}

var wizardCompleteCmd = &cobra.Command{
	Use:   "complete <job-id>",
	Short: "Complete the job from the confirm step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		j, err := a.client.Complete(cmd.Context(), args[0], location(cmd))
		if err != nil {
			return explain(err)
		}
		pterm.Success.Printfln("Job %s completed with %d photos", j.ID, len(j.Completion.UploadedPhotos))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{wizardReqCmd, wizardCheckCmd, wizardQualityCmd} {
		c.Flags().BoolVar(&uncheck, "uncheck", false, "clear the item instead")
	}
	wizardPhotoCmd.Flags().StringVar(&photoType, "type", string(models.PhotoAfter), "photo type")
	wizardCmd.AddCommand(wizardOpenCmd, wizardShowCmd, wizardNextCmd, wizardBackCmd, wizardReqCmd, wizardCheckCmd, wizardQualityCmd, wizardNotesCmd, wizardPhotoCmd, wizardCompleteCmd)
}

func wizardRun(fn func(c *client.Client, cmd *cobra.Command, args []string) (*client.WizardState, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		st, err := fn(a.client, cmd, args)
		if err != nil {
			return explain(err)
		}
		printWizard(st)
		return nil
	}
}

func printWizard(st *client.WizardState) {
	pterm.DefaultSection.Printfln("Step: %s", st.Step)
	switch st.Step {
	case "requirements":
		printRequirements(st.Requirements)
	case "photos":
		pterm.Printfln("%d photo(s) attached, at least %d required", len(st.Photos), st.MinPhotos)
		printChecklist(st.PhotoChecklist)
	case "quality":
		printChecklist(st.Quality)
	case "notes":
		if st.Notes != "" {
			pterm.Println(st.Notes)
		}
	case "confirm":
		pterm.Info.Println(`Ready. Run "staffctl wizard complete" to finish the job.`)
	}
	if !st.CanProceed && len(st.Missing) > 0 {
		pterm.Warning.Println("Still missing:")
		items := make([]pterm.BulletListItem, 0, len(st.Missing))
		for _, m := range st.Missing {
			items = append(items, pterm.BulletListItem{Level: 0, Text: m})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}
}

func printChecklist(items []models.ChecklistItem) {
	out := make([]pterm.BulletListItem, 0, len(items))
	for _, it := range items {
		mark := "[ ]"
		if it.Checked {
			mark = "[x]"
		}
		text := fmt.Sprintf("%s %s (%s)", mark, it.Label, it.ID)
		if it.Required {
			text += " *"
		}
		out = append(out, pterm.BulletListItem{Level: 0, Text: text})
	}
	_ = pterm.DefaultBulletList.WithItems(out).Render()
}
